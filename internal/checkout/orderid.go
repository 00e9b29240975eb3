package checkout

import (
	"fmt"
	"math/rand"
	"time"
)

// NewOrderID generates the external order identifier handed to the payment
// gateway: ORD-<unix millis><random 0..999>.
func NewOrderID() string {
	return fmt.Sprintf("ORD-%d%d", time.Now().UnixMilli(), rand.Intn(1000))
}
