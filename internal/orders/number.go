package orders

import (
	"fmt"
	"math/rand"
	"time"
)

const orderNumberPrefix = "MSH"

// NewOrderNumber renders MSH + unix milliseconds + three random digits.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("%s%d%03d", orderNumberPrefix, now.UnixMilli(), rand.Intn(1000))
}
