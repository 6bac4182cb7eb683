package identity

import "time"

// User is a registered wallet owner. Neither the phone number nor the PIN is stored in clear.
type User struct {
	ID            string
	PhoneHash     string
	PINHash       []byte
	WalletAddress string
	CreatedAt     time.Time
}

// Registration carries the data needed to create a user.
type Registration struct {
	Phone         string
	PIN           string
	WalletAddress string
}
