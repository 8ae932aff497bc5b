package model

// User is the respondent. Only the country code matters to visibility.
type User struct {
	BaseModel
	Name        string `gorm:"size:100;not null" json:"name"`
	Email       string `gorm:"size:100;unique;not null" json:"email"`
	CountryCode string `gorm:"size:2;index" json:"countryCode"`
}

func (User) TableName() string {
	return "users"
}
