package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PayrollHandler struct {
	payrollUC *usecase.PayrollUsecase
	logger    *zap.Logger
}

func NewPayrollHandler(payrollUC *usecase.PayrollUsecase, logger *zap.Logger) *PayrollHandler {
	return &PayrollHandler{
		payrollUC: payrollUC,
		logger:    logger,
	}
}

type contractRequest struct {
	ClientID         string           `json:"clientId"`
	EmployeeID       string           `json:"employeeId"`
	Jurisdiction     string           `json:"jurisdiction"`
	RecurringAmount  decimal.Decimal  `json:"recurringAmount"`
	EORFeePercentage *decimal.Decimal `json:"eorFeePercentage"`
	PayCycle         string           `json:"payCycle"`
	FirstPayrollAt   *time.Time       `json:"firstPayrollAt"`
}

type processPayrollRequest struct {
	ContractID  string          `json:"contractId"`
	EmployeeID  string          `json:"employeeId"`
	GrossAmount decimal.Decimal `json:"grossAmount"`
	Period      string          `json:"period"`
}

type benefitRequest struct {
	EmployeeID  string          `json:"employeeId"`
	PlanName    string          `json:"planName"`
	MonthlyCost decimal.Decimal `json:"monthlyCost"`
}

// Preview handles GET /payroll/preview?contractId&employeeId&grossAmount
func (h *PayrollHandler) Preview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	gross := decimal.Zero
	if raw := q.Get("grossAmount"); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			sendError(w, http.StatusBadRequest, "grossAmount must be a decimal", err)
			return
		}
		gross = v
	}

	b, err := h.payrollUC.Preview(r.Context(), q.Get("contractId"), q.Get("employeeId"), gross)
	if err != nil {
		sendDomainError(w, h.logger, "payroll preview", err)
		return
	}
	sendSuccess(w, http.StatusOK, "payroll preview", b)
}

// Process handles POST /payroll/process
func (h *PayrollHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req processPayrollRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, err := h.payrollUC.Process(r.Context(), usecase.ProcessPayrollRequest{
		ContractID:  req.ContractID,
		EmployeeID:  req.EmployeeID,
		GrossAmount: req.GrossAmount,
		Period:      req.Period,
	})
	if err != nil {
		sendDomainError(w, h.logger, "process payroll", err)
		return
	}

	h.logger.Info("payroll processed",
		zap.String("contract_id", rec.ContractID),
		zap.String("period", rec.Period))
	sendSuccess(w, http.StatusOK, "payroll processed", rec)
}

// CreateContract handles POST /payroll/contracts
func (h *PayrollHandler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req contractRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.payrollUC.CreateContract(r.Context(), usecase.ContractRequest{
		ClientID:         req.ClientID,
		EmployeeID:       req.EmployeeID,
		Jurisdiction:     req.Jurisdiction,
		RecurringAmount:  req.RecurringAmount,
		EORFeePercentage: req.EORFeePercentage,
		PayCycle:         domain.PayCycle(strings.ToUpper(req.PayCycle)),
		FirstPayrollAt:   req.FirstPayrollAt,
	})
	if err != nil {
		sendDomainError(w, h.logger, "create contract", err)
		return
	}
	sendSuccess(w, http.StatusCreated, "contract created", c)
}

// History handles GET /payroll/contracts/{id}/history
func (h *PayrollHandler) History(w http.ResponseWriter, r *http.Request) {
	records, err := h.payrollUC.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendDomainError(w, h.logger, "payroll history", err)
		return
	}
	if records == nil {
		records = []*domain.PayrollRecord{}
	}
	sendSuccess(w, http.StatusOK, "payroll history retrieved", records)
}

// AddBenefit handles POST /payroll/benefits
func (h *PayrollHandler) AddBenefit(w http.ResponseWriter, r *http.Request) {
	var req benefitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	b, err := h.payrollUC.AddBenefit(r.Context(), req.EmployeeID, req.PlanName, req.MonthlyCost)
	if err != nil {
		sendDomainError(w, h.logger, "add benefit", err)
		return
	}
	sendSuccess(w, http.StatusCreated, "benefit enrolled", b)
}
