package models

// SeedUsers returns the three demo accounts the service starts with.
func SeedUsers() []User {
	return []User{
		{UserID: "azeromo", Password: "azero", Name: "이영규", Email: "azero@bzero.com", CreatedAt: "2025-05-27"},
		{UserID: "bzeromo", Password: "bzero", Name: "박영규", Email: "bzero@bzero.com", CreatedAt: "2025-05-27"},
		{UserID: "czeromo", Password: "czero", Name: "김영규", Email: "czero@bzero.com", CreatedAt: "2025-05-27"},
	}
}
