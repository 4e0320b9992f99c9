package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnknownField      = errors.New("unknown form field")
	ErrUnknownList       = errors.New("unknown form list")
	ErrInvalidFieldValue = errors.New("invalid value for form field")
	ErrIndexOutOfRange   = errors.New("list index out of range")
	ErrLastListItem      = errors.New("cannot remove the last item of a list")
	ErrDocumentsNotTaken = errors.New("this form does not accept documents")
)

// Document is a file attached to a form record.
type Document struct {
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"`
	Data        []byte    `json:"data,omitempty"`
	PreviewURL  string    `json:"previewUrl"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// DocumentDigest is the hex SHA-256 of a file's content.
func DocumentDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// StripDocumentData drops file contents from every document of form, leaving the
// metadata. It mutates form.
func StripDocumentData(form FormData) {
	n := 1
	if list, ok := form.(ListForm); ok {
		n = list.Len()
	}
	for i := 0; i < n; i++ {
		doc, err := form.DocumentAt(i)
		if err != nil {
			return
		}
		if doc != nil {
			doc.Data = nil
		}
	}
}

// FieldPath addresses a field of a form. Index selects the list item on list
// forms and must be 0 everywhere else.
type FieldPath struct {
	Field string `json:"field"`
	Index int    `json:"index"`
}

// FormData is the verification data collected for one service.
type FormData interface {
	ServiceType() ServiceType
	SetField(path FieldPath, value interface{}) error
	AttachDocument(index int, doc *Document) error
	DocumentAt(index int) (*Document, error)
	ClearDocuments()
	IsComplete() bool
}

// ListForm is a form made of an ordered list of records.
type ListForm interface {
	FormData
	ListName() string
	Len() int
	AddItem()
	RemoveItem(index int) error
}

// NewForm returns the empty form for a service type. List forms start with one empty item.
func NewForm(t ServiceType) (FormData, error) {
	switch t {
	case ServiceIdentity:
		return &IdentityForm{}, nil
	case ServiceAddress:
		return &AddressForm{}, nil
	case ServiceAcademic:
		return &AcademicForm{Degrees: []Degree{{}}}, nil
	case ServiceEmployment:
		return &EmploymentForm{Jobs: []Job{{}}}, nil
	case ServiceCredit:
		return &CreditForm{}, nil
	case ServiceLicense:
		return &LicenseForm{Licenses: []License{{}}}, nil
	case ServiceReference:
		return &ReferenceForm{References: []Reference{{}}}, nil
	}
	return nil, fmt.Errorf("unknown service type %q", t)
}

func stringValue(path FieldPath, v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s expects text", ErrInvalidFieldValue, path.Field)
	}
	return s, nil
}

func boolValue(path FieldPath, v interface{}) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err == nil {
			return parsed, nil
		}
	}
	return false, fmt.Errorf("%w: %s expects true or false", ErrInvalidFieldValue, path.Field)
}

func notBlank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

func unknownField(path FieldPath) error {
	return fmt.Errorf("%w: %s", ErrUnknownField, path.Field)
}

func singleIndex(index int) error {
	if index != 0 {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return nil
}

func checkIndex(index, length int) error {
	if index < 0 || index >= length {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return nil
}

// Identity

const (
	FieldIDType           = "idType"
	FieldIDNumber         = "idNumber"
	FieldIssueDate        = "issueDate"
	FieldExpiryDate       = "expiryDate"
	FieldIssuingAuthority = "issuingAuthority"
)

type IdentityForm struct {
	IDType           string    `json:"idType"`
	IDNumber         string    `json:"idNumber"`
	IssueDate        string    `json:"issueDate"`
	ExpiryDate       string    `json:"expiryDate"`
	IssuingAuthority string    `json:"issuingAuthority"`
	Document         *Document `json:"document"`
}

func (f *IdentityForm) ServiceType() ServiceType { return ServiceIdentity }

func (f *IdentityForm) SetField(path FieldPath, value interface{}) error {
	if err := singleIndex(path.Index); err != nil {
		return err
	}
	s, err := stringValue(path, value)
	if err != nil {
		return err
	}
	switch path.Field {
	case FieldIDType:
		f.IDType = s
	case FieldIDNumber:
		f.IDNumber = s
	case FieldIssueDate:
		f.IssueDate = s
	case FieldExpiryDate:
		f.ExpiryDate = s
	case FieldIssuingAuthority:
		f.IssuingAuthority = s
	default:
		return unknownField(path)
	}
	return nil
}

func (f *IdentityForm) AttachDocument(index int, doc *Document) error {
	if err := singleIndex(index); err != nil {
		return err
	}
	f.Document = doc
	return nil
}

func (f *IdentityForm) DocumentAt(index int) (*Document, error) {
	if err := singleIndex(index); err != nil {
		return nil, err
	}
	return f.Document, nil
}

func (f *IdentityForm) ClearDocuments() { f.Document = nil }

func (f *IdentityForm) IsComplete() bool {
	return notBlank(f.IDType, f.IDNumber, f.IssueDate, f.ExpiryDate, f.IssuingAuthority) && f.Document != nil
}

// Address

const (
	FieldStreet         = "street"
	FieldCity           = "city"
	FieldState          = "state"
	FieldZipCode        = "zipCode"
	FieldCountry        = "country"
	FieldResidenceSince = "residenceSince"
)

type AddressForm struct {
	Street         string    `json:"street"`
	City           string    `json:"city"`
	State          string    `json:"state"`
	ZipCode        string    `json:"zipCode"`
	Country        string    `json:"country"`
	ResidenceSince string    `json:"residenceSince"`
	Document       *Document `json:"document"`
}

func (f *AddressForm) ServiceType() ServiceType { return ServiceAddress }

func (f *AddressForm) SetField(path FieldPath, value interface{}) error {
	if err := singleIndex(path.Index); err != nil {
		return err
	}
	s, err := stringValue(path, value)
	if err != nil {
		return err
	}
	switch path.Field {
	case FieldStreet:
		f.Street = s
	case FieldCity:
		f.City = s
	case FieldState:
		f.State = s
	case FieldZipCode:
		f.ZipCode = s
	case FieldCountry:
		f.Country = s
	case FieldResidenceSince:
		f.ResidenceSince = s
	default:
		return unknownField(path)
	}
	return nil
}

func (f *AddressForm) AttachDocument(index int, doc *Document) error {
	if err := singleIndex(index); err != nil {
		return err
	}
	f.Document = doc
	return nil
}

func (f *AddressForm) DocumentAt(index int) (*Document, error) {
	if err := singleIndex(index); err != nil {
		return nil, err
	}
	return f.Document, nil
}

func (f *AddressForm) ClearDocuments() { f.Document = nil }

func (f *AddressForm) IsComplete() bool {
	return notBlank(f.Street, f.City, f.State, f.ZipCode, f.Country, f.ResidenceSince)
}

// Academic

const (
	ListDegrees       = "degrees"
	FieldInstitution  = "institution"
	FieldDegree       = "degree"
	FieldFieldOfStudy = "fieldOfStudy"
	FieldStartDate    = "startDate"
	FieldEndDate      = "endDate"
	FieldGrade        = "grade"
)

type Degree struct {
	Institution  string    `json:"institution"`
	Degree       string    `json:"degree"`
	FieldOfStudy string    `json:"fieldOfStudy"`
	StartDate    string    `json:"startDate"`
	EndDate      string    `json:"endDate"`
	Grade        string    `json:"grade"`
	Document     *Document `json:"document"`
}

type AcademicForm struct {
	Degrees []Degree `json:"degrees"`
}

func (f *AcademicForm) ServiceType() ServiceType { return ServiceAcademic }
func (f *AcademicForm) ListName() string         { return ListDegrees }
func (f *AcademicForm) Len() int                 { return len(f.Degrees) }
func (f *AcademicForm) AddItem()                 { f.Degrees = append(f.Degrees, Degree{}) }

func (f *AcademicForm) RemoveItem(index int) error {
	if err := checkIndex(index, len(f.Degrees)); err != nil {
		return err
	}
	if len(f.Degrees) == 1 {
		return ErrLastListItem
	}
	f.Degrees = append(f.Degrees[:index], f.Degrees[index+1:]...)
	return nil
}

func (f *AcademicForm) SetField(path FieldPath, value interface{}) error {
	if err := checkIndex(path.Index, len(f.Degrees)); err != nil {
		return err
	}
	s, err := stringValue(path, value)
	if err != nil {
		return err
	}
	d := &f.Degrees[path.Index]
	switch path.Field {
	case FieldInstitution:
		d.Institution = s
	case FieldDegree:
		d.Degree = s
	case FieldFieldOfStudy:
		d.FieldOfStudy = s
	case FieldStartDate:
		d.StartDate = s
	case FieldEndDate:
		d.EndDate = s
	case FieldGrade:
		d.Grade = s
	default:
		return unknownField(path)
	}
	return nil
}

func (f *AcademicForm) AttachDocument(index int, doc *Document) error {
	if err := checkIndex(index, len(f.Degrees)); err != nil {
		return err
	}
	f.Degrees[index].Document = doc
	return nil
}

func (f *AcademicForm) DocumentAt(index int) (*Document, error) {
	if err := checkIndex(index, len(f.Degrees)); err != nil {
		return nil, err
	}
	return f.Degrees[index].Document, nil
}

func (f *AcademicForm) ClearDocuments() {
	for i := range f.Degrees {
		f.Degrees[i].Document = nil
	}
}

func (f *AcademicForm) IsComplete() bool {
	if len(f.Degrees) == 0 {
		return false
	}
	for _, d := range f.Degrees {
		if !notBlank(d.Institution, d.Degree, d.FieldOfStudy, d.StartDate, d.EndDate) {
			return false
		}
	}
	return true
}

// Employment

const (
	ListJobs               = "jobs"
	FieldEmployer          = "employer"
	FieldPosition          = "position"
	FieldCurrent           = "current"
	FieldResponsibilities  = "responsibilities"
	FieldSupervisorName    = "supervisorName"
	FieldSupervisorContact = "supervisorContact"
)

type Job struct {
	Employer          string    `json:"employer"`
	Position          string    `json:"position"`
	StartDate         string    `json:"startDate"`
	EndDate           string    `json:"endDate"`
	Current           bool      `json:"current"`
	Responsibilities  string    `json:"responsibilities"`
	SupervisorName    string    `json:"supervisorName"`
	SupervisorContact string    `json:"supervisorContact"`
	Document          *Document `json:"document"`
}

type EmploymentForm struct {
	Jobs []Job `json:"jobs"`
}

func (f *EmploymentForm) ServiceType() ServiceType { return ServiceEmployment }
func (f *EmploymentForm) ListName() string         { return ListJobs }
func (f *EmploymentForm) Len() int                 { return len(f.Jobs) }
func (f *EmploymentForm) AddItem()                 { f.Jobs = append(f.Jobs, Job{}) }

func (f *EmploymentForm) RemoveItem(index int) error {
	if err := checkIndex(index, len(f.Jobs)); err != nil {
		return err
	}
	if len(f.Jobs) == 1 {
		return ErrLastListItem
	}
	f.Jobs = append(f.Jobs[:index], f.Jobs[index+1:]...)
	return nil
}

func (f *EmploymentForm) SetField(path FieldPath, value interface{}) error {
	if err := checkIndex(path.Index, len(f.Jobs)); err != nil {
		return err
	}
	j := &f.Jobs[path.Index]
	if path.Field == FieldCurrent {
		b, err := boolValue(path, value)
		if err != nil {
			return err
		}
		j.Current = b
		return nil
	}
	s, err := stringValue(path, value)
	if err != nil {
		return err
	}
	switch path.Field {
	case FieldEmployer:
		j.Employer = s
	case FieldPosition:
		j.Position = s
	case FieldStartDate:
		j.StartDate = s
	case FieldEndDate:
		j.EndDate = s
	case FieldResponsibilities:
		j.Responsibilities = s
	case FieldSupervisorName:
		j.SupervisorName = s
	case FieldSupervisorContact:
		j.SupervisorContact = s
	default:
		return unknownField(path)
	}
	return nil
}

func (f *EmploymentForm) AttachDocument(index int, doc *Document) error {
	if err := checkIndex(index, len(f.Jobs)); err != nil {
		return err
	}
	f.Jobs[index].Document = doc
	return nil
}

func (f *EmploymentForm) DocumentAt(index int) (*Document, error) {
	if err := checkIndex(index, len(f.Jobs)); err != nil {
		return nil, err
	}
	return f.Jobs[index].Document, nil
}

func (f *EmploymentForm) ClearDocuments() {
	for i := range f.Jobs {
		f.Jobs[i].Document = nil
	}
}

func (f *EmploymentForm) IsComplete() bool {
	if len(f.Jobs) == 0 {
		return false
	}
	for _, j := range f.Jobs {
		if !notBlank(j.Employer, j.Position, j.StartDate) {
			return false
		}
		if !j.Current && !notBlank(j.EndDate) {
			return false
		}
	}
	return true
}

// Credit

const (
	FieldSSN     = "ssn"
	FieldConsent = "consent"
)

var ssnPattern = regexp.MustCompile(`^\d{3}-?\d{2}-?\d{4}$`)

type CreditForm struct {
	SSN      string    `json:"ssn"`
	Consent  bool      `json:"consent"`
	Document *Document `json:"document"`
}

func (f *CreditForm) ServiceType() ServiceType { return ServiceCredit }

func (f *CreditForm) SetField(path FieldPath, value interface{}) error {
	if err := singleIndex(path.Index); err != nil {
		return err
	}
	switch path.Field {
	case FieldSSN:
		s, err := stringValue(path, value)
		if err != nil {
			return err
		}
		f.SSN = s
	case FieldConsent:
		b, err := boolValue(path, value)
		if err != nil {
			return err
		}
		f.Consent = b
	default:
		return unknownField(path)
	}
	return nil
}

func (f *CreditForm) AttachDocument(index int, doc *Document) error {
	if err := singleIndex(index); err != nil {
		return err
	}
	f.Document = doc
	return nil
}

func (f *CreditForm) DocumentAt(index int) (*Document, error) {
	if err := singleIndex(index); err != nil {
		return nil, err
	}
	return f.Document, nil
}

func (f *CreditForm) ClearDocuments() { f.Document = nil }

func (f *CreditForm) IsComplete() bool {
	return ssnPattern.MatchString(strings.TrimSpace(f.SSN)) && f.Consent
}

// License

const (
	ListLicenses       = "licenses"
	FieldLicenseType   = "licenseType"
	FieldLicenseNumber = "licenseNumber"
)

type License struct {
	LicenseType      string    `json:"licenseType"`
	LicenseNumber    string    `json:"licenseNumber"`
	IssuingAuthority string    `json:"issuingAuthority"`
	IssueDate        string    `json:"issueDate"`
	ExpiryDate       string    `json:"expiryDate"`
	Document         *Document `json:"document"`
}

type LicenseForm struct {
	Licenses []License `json:"licenses"`
}

func (f *LicenseForm) ServiceType() ServiceType { return ServiceLicense }
func (f *LicenseForm) ListName() string         { return ListLicenses }
func (f *LicenseForm) Len() int                 { return len(f.Licenses) }
func (f *LicenseForm) AddItem()                 { f.Licenses = append(f.Licenses, License{}) }

func (f *LicenseForm) RemoveItem(index int) error {
	if err := checkIndex(index, len(f.Licenses)); err != nil {
		return err
	}
	if len(f.Licenses) == 1 {
		return ErrLastListItem
	}
	f.Licenses = append(f.Licenses[:index], f.Licenses[index+1:]...)
	return nil
}

func (f *LicenseForm) SetField(path FieldPath, value interface{}) error {
	if err := checkIndex(path.Index, len(f.Licenses)); err != nil {
		return err
	}
	s, err := stringValue(path, value)
	if err != nil {
		return err
	}
	l := &f.Licenses[path.Index]
	switch path.Field {
	case FieldLicenseType:
		l.LicenseType = s
	case FieldLicenseNumber:
		l.LicenseNumber = s
	case FieldIssuingAuthority:
		l.IssuingAuthority = s
	case FieldIssueDate:
		l.IssueDate = s
	case FieldExpiryDate:
		l.ExpiryDate = s
	default:
		return unknownField(path)
	}
	return nil
}

func (f *LicenseForm) AttachDocument(index int, doc *Document) error {
	if err := checkIndex(index, len(f.Licenses)); err != nil {
		return err
	}
	f.Licenses[index].Document = doc
	return nil
}

func (f *LicenseForm) DocumentAt(index int) (*Document, error) {
	if err := checkIndex(index, len(f.Licenses)); err != nil {
		return nil, err
	}
	return f.Licenses[index].Document, nil
}

func (f *LicenseForm) ClearDocuments() {
	for i := range f.Licenses {
		f.Licenses[i].Document = nil
	}
}

func (f *LicenseForm) IsComplete() bool {
	if len(f.Licenses) == 0 {
		return false
	}
	for _, l := range f.Licenses {
		if !notBlank(l.LicenseType, l.LicenseNumber, l.IssuingAuthority, l.IssueDate) {
			return false
		}
	}
	return true
}

// Reference

const (
	ListReferences    = "references"
	FieldName         = "name"
	FieldRelationship = "relationship"
	FieldCompany      = "company"
	FieldEmail        = "email"
	FieldPhone        = "phone"
	FieldYearsKnown   = "yearsKnown"
)

type Reference struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Company      string `json:"company"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	YearsKnown   string `json:"yearsKnown"`
}

type ReferenceForm struct {
	References []Reference `json:"references"`
}

func (f *ReferenceForm) ServiceType() ServiceType { return ServiceReference }
func (f *ReferenceForm) ListName() string         { return ListReferences }
func (f *ReferenceForm) Len() int                 { return len(f.References) }
func (f *ReferenceForm) AddItem()                 { f.References = append(f.References, Reference{}) }

func (f *ReferenceForm) RemoveItem(index int) error {
	if err := checkIndex(index, len(f.References)); err != nil {
		return err
	}
	if len(f.References) == 1 {
		return ErrLastListItem
	}
	f.References = append(f.References[:index], f.References[index+1:]...)
	return nil
}

func (f *ReferenceForm) SetField(path FieldPath, value interface{}) error {
	if err := checkIndex(path.Index, len(f.References)); err != nil {
		return err
	}
	s, err := stringValue(path, value)
	if err != nil {
		return err
	}
	r := &f.References[path.Index]
	switch path.Field {
	case FieldName:
		r.Name = s
	case FieldRelationship:
		r.Relationship = s
	case FieldCompany:
		r.Company = s
	case FieldEmail:
		r.Email = s
	case FieldPhone:
		r.Phone = s
	case FieldYearsKnown:
		r.YearsKnown = s
	default:
		return unknownField(path)
	}
	return nil
}

func (f *ReferenceForm) AttachDocument(int, *Document) error { return ErrDocumentsNotTaken }

func (f *ReferenceForm) DocumentAt(int) (*Document, error) { return nil, ErrDocumentsNotTaken }

func (f *ReferenceForm) ClearDocuments() {}

func (f *ReferenceForm) IsComplete() bool {
	if len(f.References) == 0 {
		return false
	}
	for _, r := range f.References {
		if !notBlank(r.Name, r.Relationship, r.Email, r.Phone) {
			return false
		}
	}
	return true
}
