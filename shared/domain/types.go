package domain

type (
	Email    = string
	Password = string
	UserId   = int64
)
