// Package model holds the company records returned by the backend API.
// The cache and history treat them as opaque payloads.
package model

// FinancialRecord is one year of a company's balance sheet.
type FinancialRecord struct {
	CUI              string `json:"cui"`
	Year             int    `json:"year"`
	NetTurnover      int64  `json:"netTurnover"`
	NetProfit        int64  `json:"netProfit"`
	TotalExpenses    int64  `json:"totalExpenses"`
	Liabilities      int64  `json:"liabilities"`
	TotalCapital     int64  `json:"totalCapital"`
	FixedAssets      int64  `json:"fixedAssets"`
	AverageEmployees int    `json:"averageEmployees"`
}

// Company is the registry metadata of a company.
type Company struct {
	CUI              string            `json:"cui"`
	CompanyName      string            `json:"companyName"`
	FiscalAddress    string            `json:"fiscalAddress"`
	TradeRegisterNo  string            `json:"tradeRegisterNo"`
	Phone            string            `json:"phone"`
	Fax              string            `json:"fax"`
	PostalCode       string            `json:"postalCode"`
	RegistrationDate string            `json:"registrationDate,omitempty"` // YYYY-MM-DD
	CAENCode         int               `json:"caenCode"`
	CAENDescription  string            `json:"caenDescription"`
	IsVATPayer       bool              `json:"isVatPayer"`
	IsInactive       bool              `json:"isInactive"`
	FinancialRecords []FinancialRecord `json:"financialRecords,omitempty"`
}

// CompanyCacheData is what the result cache stores for one
// (identifier, years) lookup.
type CompanyCacheData struct {
	Company Company           `json:"company"`
	Records []FinancialRecord `json:"records"`
	Years   int               `json:"years"`
}

// APIResponse is the backend's generic message/data envelope.
type APIResponse struct {
	Message string `json:"message"`
	Data    string `json:"data"`
}

// EmailVerification is returned when an email verification session starts.
type EmailVerification struct {
	SessionID string `json:"sessionId"`
	AuthURL   string `json:"authUrl"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}
