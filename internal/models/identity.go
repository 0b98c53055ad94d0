package models

// Identity is the signed-in user as the client knows it. Email doubles as the
// username for every downstream call.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Age   *int   `json:"age,omitempty"`
}
