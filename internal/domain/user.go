package domain

// User is created on first sign-in and never auto-deleted. Complete flips to
// true once name, email and picture are all present.
type User struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Email    *string `json:"email"`
	Picture  *string `json:"picture"`
	Complete bool    `json:"complete"`
}

type UserView struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Picture  *string `json:"picture"`
	Complete bool    `json:"complete"`
}

// UserProject is the membership shape returned when listing a project's users.
type UserProject struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Email *string `json:"email"`
}

func ToUserView(u User) UserView {
	return UserView{
		ID:       u.ID,
		Name:     u.Name,
		Picture:  u.Picture,
		Complete: u.Complete,
	}
}

func ToUserProject(u User) UserProject {
	return UserProject{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
	}
}
