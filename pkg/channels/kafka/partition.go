package kafka

import (
	"github.com/ThreeDotsLabs/watermill/message"
)

// partitionKey keeps every event for one ticket or template on the same partition, so
// consumers see them in publish order.
func partitionKey(_ string, msg *message.Message) (string, error) {
	return msg.Metadata.Get("key"), nil
}
