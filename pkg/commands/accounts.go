package commands

import "github.com/morezero/marketplace-gateway/pkg/dispatcher"

func (c *catalog) accountEntries() []dispatcher.Entry {
	return []dispatcher.Entry{
		entry("register_user", ack("User registered", "Missing user_id or email", "user_id", "email")),
		entry("get_user_profile", ack("User profile", "Missing user IDs", "requesting_user_id", "target_user_id")),
		entry("update_user_profile", ack("User profile updated", "Missing user_id", "user_id")),
		entry("delete_user_profile", ack("User profile deleted", "Missing user IDs", "requesting_user_id", "target_user_id")),
		entry("start_subscription", ack("Subscription started", "Missing user_id or plan_id", "user_id", "plan_id")),
		entry("cancel_subscription", ack("Subscription canceled", "Missing user_id", "user_id")),
		entry("get_subscription_status", ack("Subscription status", "Missing user_id", "user_id")),
		entry("login", ack("Login successful", "Missing email or password", "email", "password")),
	}
}
