package user

import "time"

type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"` // Never expose password in JSON
	CreatedAt time.Time `json:"created_at"`
}

// Profile is the outward view of a user: id and username only.
type Profile struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Username: u.Username}
}
