package model

// Setting is a single runtime-tunable key. Value holds a JSON document
// (scalar or list). The key lives in column "name": KEY is reserved in MySQL.
type Setting struct {
	Key   string `gorm:"column:name;type:varchar(191);primaryKey" json:"key"`
	Value string `gorm:"type:text" json:"value"`
}

func (Setting) TableName() string { return "settings" }
