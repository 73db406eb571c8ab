package domain

import "time"

// ClientType is the taxpayer registry kind of a robot client.
type ClientType string

const (
	ClientTypeCPF  ClientType = "CPF"
	ClientTypeCNPJ ClientType = "CNPJ"
)

// Valid reports whether t is CPF or CNPJ.
func (t ClientType) Valid() bool {
	return t == ClientTypeCPF || t == ClientTypeCNPJ
}

// Client is a registered certificate holder whose invoices the robot downloads.
type Client struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        ClientType `json:"type"`
	Identifier  string     `json:"identifier"`
	Certificate string     `json:"certificate,omitempty"` // uploaded file name only
	CreatedAt   time.Time  `json:"createdAt"`
}
