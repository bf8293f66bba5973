package models

// User is one user record. CreatedAt is opaque text; nothing parses it.
type User struct {
	UserID    string `json:"userId"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
}

// UserSummary is the stripped listing view: no credential, no name.
type UserSummary struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
}

// Summary projects u onto the listing view.
func (u User) Summary() UserSummary {
	return UserSummary{UserID: u.UserID, Email: u.Email, CreatedAt: u.CreatedAt}
}

// PatchUserParams holds the fields a partial update may touch. A nil pointer
// leaves the stored value alone; every other field of the record is never
// patched.
type PatchUserParams struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// Apply copies the non-nil fields onto u.
func (p PatchUserParams) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
}

// IsEmpty reports whether the patch would change nothing.
func (p PatchUserParams) IsEmpty() bool {
	return p.Name == nil && p.Email == nil
}

// CreateUserRequest is the validated sign-up payload. Constraints are declared
// with validator tags and enforced by the validation package.
type CreateUserRequest struct {
	UserID   string `json:"userId"   form:"userId"   validate:"required,alphanum,min=4,max=20"`
	Password string `json:"password" form:"password" validate:"required,min=4,max=64"`
	Name     string `json:"name"     form:"name"     validate:"required,max=50"`
	Email    string `json:"email"    form:"email"    validate:"required,email"`
	Phone    string `json:"phone"    form:"phone"    validate:"omitempty,phone"`
}

// ToUser converts the request into a record stamped with createdAt.
func (r CreateUserRequest) ToUser(createdAt string) User {
	return User{
		UserID:    r.UserID,
		Password:  r.Password,
		Name:      r.Name,
		Email:     r.Email,
		CreatedAt: createdAt,
	}
}
