package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"voice-banking/internal/auth"
	"voice-banking/internal/bank"
	"voice-banking/internal/calls"
	"voice-banking/internal/flows"
	"voice-banking/internal/records"
	"voice-banking/internal/reporting"
	"voice-banking/pkg/logger"

	"github.com/gin-gonic/gin"
)

type LiveCalls interface {
	Snapshot() []calls.ActiveCall
	Detail(callID string) (calls.CallDetail, bool)
}

type History interface {
	ListCalls(ctx context.Context, f records.HistoryFilter) ([]records.CallRecord, error)
	GetCall(ctx context.Context, callID string) (records.CallRecord, error)
}

type Customers interface {
	ListCustomers(ctx context.Context) ([]bank.Customer, error)
}

type FlowCatalogs interface {
	Current() *flows.Catalog
	Reload() error
}

type Reports interface {
	CallsSummary(ctx context.Context, r reporting.TimeRange) (reporting.CallsSummary, error)
}

type AdminAuditor interface {
	LogAdminAction(ctx context.Context, actorUserID, actorRole, ip, message, metadata string) error
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Accounts  *auth.Accounts
	Live      LiveCalls
	History   History
	Customers Customers
	Flows     FlowCatalogs
	Reports   Reports
	Audit     AdminAuditor
}

// --- Auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges operator credentials for a JWT token pair.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil || h.Accounts.Empty() {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin login not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Username == "" || req.Password == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	role, err := h.Accounts.Authenticate(req.Username, req.Password)
	if err != nil {
		logger.FromGin(c).Warn("admin login rejected", "username", req.Username)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.Username, role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	h.audit(c, req.Username, role, "admin login", "")
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_in":    pair.ExpiresIn,
		"role":          role,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh issues a new pair. The role is looked up again so a removed
// operator cannot keep refreshing.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin login not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	now := time.Now()
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, now)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	role, ok := h.Accounts.RoleOf(claims.UserID)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	pair, err := h.Auth.IssuePair(now, claims.UserID, role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// --- Live calls ---

func (h Handlers) ListLiveCalls(c *gin.Context) {
	if h.Live == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "live calls not configured"})
		return
	}
	active := h.Live.Snapshot()
	c.JSON(http.StatusOK, gin.H{"calls": active, "count": len(active)})
}

func (h Handlers) GetLiveCall(c *gin.Context) {
	if h.Live == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "live calls not configured"})
		return
	}
	d, ok := h.Live.Detail(c.Param("call_id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not active"})
		return
	}
	c.JSON(http.StatusOK, d)
}

// --- History ---

func (h Handlers) ListCallHistory(c *gin.Context) {
	if h.History == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history not configured"})
		return
	}
	f := records.HistoryFilter{
		CustomerID: strings.TrimSpace(c.Query("customer_id")),
		Status:     calls.CallStatus(strings.TrimSpace(c.Query("status"))),
	}
	var err error
	if f.From, err = optTime(c.Query("from")); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
		return
	}
	if f.To, err = optTime(c.Query("to")); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
		return
	}
	if f.Limit, err = optInt(c.Query("limit")); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}
	if f.Offset, err = optInt(c.Query("offset")); err != nil || f.Offset < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	rows, err := h.History.ListCalls(c.Request.Context(), f)
	if err != nil {
		logger.FromGin(c).Error("list call history failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": rows, "count": len(rows)})
}

func (h Handlers) GetCallHistory(c *gin.Context) {
	if h.History == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history not configured"})
		return
	}
	rec, err := h.History.GetCall(c.Request.Context(), c.Param("call_id"))
	if errors.Is(err, records.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("get call history failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// --- Customers ---

type customerView struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	AccountNumber string          `json:"account_number"`
	Phone         string          `json:"phone"`
	Balance       string          `json:"balance"`
	Currency      string          `json:"currency"`
	CardID        string          `json:"card_id"`
	CardStatus    bank.CardStatus `json:"card_status"`
}

func (h Handlers) ListCustomers(c *gin.Context) {
	if h.Customers == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "customers not configured"})
		return
	}
	list, err := h.Customers.ListCustomers(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("list customers failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "customer lookup failed"})
		return
	}
	out := make([]customerView, 0, len(list))
	for _, cu := range list {
		out = append(out, customerView{
			ID:            cu.ID,
			Name:          cu.Name,
			AccountNumber: cu.AccountNumber,
			Phone:         cu.Phone,
			Balance:       bank.FormatMinor(cu.BalanceMinor),
			Currency:      cu.Currency,
			CardID:        cu.CardID,
			CardStatus:    cu.CardStatus,
		})
	}
	c.JSON(http.StatusOK, gin.H{"customers": out, "count": len(out)})
}

// --- Flows ---

func (h Handlers) ListFlows(c *gin.Context) {
	if h.Flows == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "flows not configured"})
		return
	}
	cat := h.Flows.Current()
	c.JSON(http.StatusOK, gin.H{
		"persona":              cat.Persona,
		"verification_prompts": cat.VerificationPrompts,
		"handoff_message":      cat.HandoffMessage,
		"flows":                cat.Ordered(),
	})
}

// ReloadFlows re-reads the flow file. Calls in progress pick the new catalog
// up on their next turn. RBAC: admin only.
func (h Handlers) ReloadFlows(c *gin.Context) {
	if h.Flows == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "flows not configured"})
		return
	}
	op, _ := auth.OperatorFrom(c.Request.Context())
	if err := h.Flows.Reload(); err != nil {
		logger.FromGin(c).Warn("flow reload rejected", "err", err)
		h.audit(c, op.Username, op.Role, "flow reload failed", "")
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	keys := h.Flows.Current().Keys()
	h.audit(c, op.Username, op.Role, "flows reloaded", `{"flows":`+strconv.Itoa(len(keys))+`}`)
	c.JSON(http.StatusOK, gin.H{"status": "reloaded", "flows": keys})
}

// --- Reports ---

func (h Handlers) CallsReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reports not configured"})
		return
	}
	now := time.Now().UTC()
	r := reporting.TimeRange{From: now.Add(-24 * time.Hour), To: now}
	if v, err := optTime(c.Query("from")); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
		return
	} else if !v.IsZero() {
		r.From = v
	}
	if v, err := optTime(c.Query("to")); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
		return
	} else if !v.IsZero() {
		r.To = v
	}

	sum, err := h.Reports.CallsSummary(c.Request.Context(), r)
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be after from"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("calls report failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h Handlers) audit(c *gin.Context, uid, role, msg, meta string) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.LogAdminAction(c.Request.Context(), uid, role, c.ClientIP(), msg, meta); err != nil {
		logger.FromGin(c).Warn("admin audit failed", "err", err)
	}
}

func optTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

func optInt(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
