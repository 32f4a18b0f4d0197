package users

// User is one row of the users table. The loan service only ever reads
// users; all mutation stays here.
type User struct {
	ID    int64
	Name  string
	Email string
	Role  string
}

const defaultRole = "member"
