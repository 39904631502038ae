package commands

import "github.com/morezero/marketplace-gateway/pkg/dispatcher"

func (c *catalog) cartEntries() []dispatcher.Entry {
	return []dispatcher.Entry{
		entry("add_to_cart", ack("Item added to cart", "Missing item_id", "item_id")),
		entry("remove_from_cart", ack("Item removed from cart", "Missing item_id", "item_id")),
		entry("view_cart", ack("Cart viewed", "Missing user_id", "user_id")),
		entry("download_cart", ack("Cart downloaded", "Missing user_id", "user_id")),
	}
}
