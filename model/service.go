package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ServiceType identifies one kind of verification a candidate can buy.
type ServiceType string

const (
	ServiceIdentity   ServiceType = "identity"
	ServiceAddress    ServiceType = "address"
	ServiceAcademic   ServiceType = "academic"
	ServiceEmployment ServiceType = "employment"
	ServiceCredit     ServiceType = "credit"
	ServiceLicense    ServiceType = "license"
	ServiceReference  ServiceType = "reference"
)

// ServiceTypes lists every known service type in catalog order.
var ServiceTypes = []ServiceType{
	ServiceIdentity,
	ServiceAddress,
	ServiceAcademic,
	ServiceEmployment,
	ServiceCredit,
	ServiceLicense,
	ServiceReference,
}

func (s ServiceType) Valid() bool {
	for _, t := range ServiceTypes {
		if t == s {
			return true
		}
	}
	return false
}

// StorageKey is the key the service's form data is persisted under.
func (s ServiceType) StorageKey() string {
	return string(s) + "VerificationData"
}

// PayloadKey is the key the service's form data is sent under on submission.
func (s ServiceType) PayloadKey() string {
	return string(s) + "Data"
}

type VerificationService struct {
	ID               ServiceType     `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	Price            decimal.Decimal `json:"price"`
	DocumentRequired bool            `json:"documentRequired"`
	DocumentTypes    []string        `json:"documentTypes"`
}

// AcceptsDocument reports whether a file name has one of the service's allowed extensions.
func (s VerificationService) AcceptsDocument(fileName string) bool {
	dot := strings.LastIndex(fileName, ".")
	if dot < 0 || dot == len(fileName)-1 {
		return false
	}
	ext := strings.ToLower(fileName[dot+1:])
	for _, allowed := range s.DocumentTypes {
		if strings.ToLower(strings.TrimPrefix(allowed, ".")) == ext {
			return true
		}
	}
	return false
}

// Catalog is the immutable list of services offered to a session.
type Catalog []VerificationService

func (c Catalog) Lookup(id ServiceType) (VerificationService, bool) {
	for _, s := range c {
		if s.ID == id {
			return s, true
		}
	}
	return VerificationService{}, false
}

func (c Catalog) Contains(id ServiceType) bool {
	_, ok := c.Lookup(id)
	return ok
}

// DefaultCatalog is served whenever the backend catalog cannot be fetched.
func DefaultCatalog() Catalog {
	return Catalog{
		{
			ID:               ServiceIdentity,
			Name:             "Identity Verification",
			Description:      "Verify government issued identity documents",
			Price:            decimal.RequireFromString("14.99"),
			DocumentRequired: true,
			DocumentTypes:    []string{"pdf", "jpg", "jpeg", "png"},
		},
		{
			ID:               ServiceAddress,
			Name:             "Address Verification",
			Description:      "Confirm current residential address",
			Price:            decimal.RequireFromString("19.99"),
			DocumentRequired: false,
			DocumentTypes:    []string{"pdf", "jpg", "jpeg", "png"},
		},
		{
			ID:               ServiceAcademic,
			Name:             "Academic Verification",
			Description:      "Validate degrees and academic records",
			Price:            decimal.RequireFromString("24.99"),
			DocumentRequired: false,
			DocumentTypes:    []string{"pdf", "jpg", "jpeg", "png"},
		},
		{
			ID:               ServiceEmployment,
			Name:             "Employment Verification",
			Description:      "Confirm employment history with previous employers",
			Price:            decimal.RequireFromString("29.99"),
			DocumentRequired: false,
			DocumentTypes:    []string{"pdf", "doc", "docx"},
		},
		{
			ID:               ServiceCredit,
			Name:             "Credit Check",
			Description:      "Run a consent based credit history check",
			Price:            decimal.RequireFromString("9.99"),
			DocumentRequired: false,
			DocumentTypes:    []string{"pdf"},
		},
		{
			ID:               ServiceLicense,
			Name:             "Professional License Verification",
			Description:      "Verify professional licenses and certifications",
			Price:            decimal.RequireFromString("12.99"),
			DocumentRequired: false,
			DocumentTypes:    []string{"pdf", "jpg", "jpeg", "png"},
		},
		{
			ID:               ServiceReference,
			Name:             "Reference Check",
			Description:      "Contact professional and personal references",
			Price:            decimal.RequireFromString("17.99"),
			DocumentRequired: false,
			DocumentTypes:    []string{},
		},
	}
}
