package orders

const (
	TopicNotifications = "order.notifications"
)

// Partition key = account_id, supaya notifikasi 1 akun maintain urutan.
func PartitionKey(accountID string) []byte { return []byte(accountID) }
