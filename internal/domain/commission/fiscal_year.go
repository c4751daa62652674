package commission

import (
	"time"

	"github.com/google/uuid"
)

// FiscalYear is a company's accounting period
type FiscalYear struct {
	ID        uuid.UUID
	Name      string
	CompanyID int64
	DateFrom  time.Time
	DateTo    time.Time
	CreatedAt time.Time
}

// NewFiscalYear creates a fiscal year covering [from, to]
func NewFiscalYear(name string, companyID int64, from, to time.Time) (*FiscalYear, error) {
	from, to = DateOf(from), DateOf(to)
	if name == "" || companyID <= 0 || from.After(to) {
		return nil, ErrInvalidFiscalYear
	}
	return &FiscalYear{
		ID:        uuid.New(),
		Name:      name,
		CompanyID: companyID,
		DateFrom:  from,
		DateTo:    to,
		CreatedAt: time.Now(),
	}, nil
}

// Contains reports whether the date falls within the fiscal year
func (fy *FiscalYear) Contains(d time.Time) bool {
	d = DateOf(d)
	return !d.Before(fy.DateFrom) && !d.After(fy.DateTo)
}

// HasEndedBy reports whether the fiscal year is over on the given day
func (fy *FiscalYear) HasEndedBy(today time.Time) bool {
	return DateOf(today).After(fy.DateTo)
}
