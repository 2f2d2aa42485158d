package model

import "time"

type User struct {
	UID                string
	FirstName          *string
	LastName           *string
	CompanyName        *string
	PhoneNumber        *string
	Email              string
	PasswordHash       string
	Country            *string
	CountryCode        *string
	CountryCallingCode *string
	Currency           *string
	InEU               bool
	IsBlocked          bool
	IsCompany          bool
	IsSuperuser        bool
	Joined             time.Time
	UpdatedAt          time.Time
}

type KnownIP struct {
	UID     string
	IP      string
	UserUID string
}

type BannedIP struct {
	UID     string
	IP      string
	UserUID string
}

type VerifiedEmail struct {
	UID        string
	Email      string
	UserUID    string
	VerifiedAt time.Time
}

type FAQ struct {
	UID       string
	Question  string
	Answer    string
	Domain    string
	CreatedAt time.Time
}

type Testimonial struct {
	UID       string
	Name      string
	Position  string
	Company   string
	Testimony string
	Rating    int
	Domain    string
	CreatedAt time.Time
}

type Project struct {
	UID          string
	Name         string
	Description  string
	ClientName   *string
	Domain       string
	Completed    bool
	ExistingLink *string
	Stacks       []string
	CreatedAt    time.Time
}

type Service struct {
	UID         string
	Name        string
	Description string
	Domain      string
	MinDuration int
	MaxDuration int
	CreatedAt   time.Time
}

type ServiceRequest struct {
	UID        string
	ServiceUID string
	UserUID    string
	Details    string
	Status     string
	CreatedAt  time.Time
}

type PageView struct {
	UID              string
	Pathname         string
	Domain           string
	IP               string
	TimeSpentSeconds int
	CreatedAt        time.Time
}

type PageViewCount struct {
	Pathname string
	Views    int64
}
