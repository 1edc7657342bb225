package models

import "time"

// ValueType declares how a SystemParameter value is decoded.
type ValueType string

const (
	ValueInt   ValueType = "int"
	ValueFloat ValueType = "float"
	ValueBool  ValueType = "bool"
	ValueJSON  ValueType = "json"
	ValueStr   ValueType = "str"
)

// SystemParameter is an operator-tunable key/value row.
type SystemParameter struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Key         string    `json:"key" gorm:"column:param_key;size:100;uniqueIndex;not null"`
	Value       string    `json:"value" gorm:"type:text;not null"`
	ValueType   ValueType `json:"value_type" gorm:"size:10;not null;default:'str'"`
	Category    string    `json:"category" gorm:"size:50;index"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (SystemParameter) TableName() string {
	return "system_parameters"
}
