package bridge

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wso2/consent-widget/internal/submission"
	"github.com/wso2/consent-widget/internal/system/error/apierror"
	"github.com/wso2/consent-widget/internal/system/error/codes"
	"github.com/wso2/consent-widget/internal/system/error/serviceerror"
	"github.com/wso2/consent-widget/internal/widget"
)

// widgetHandler handles HTTP requests for the widget front end.
type widgetHandler struct {
	engine *widget.Engine
}

func newWidgetHandler(engine *widget.Engine) *widgetHandler {
	return &widgetHandler{engine: engine}
}

// stateResponse is the render model for the front end.
type stateResponse struct {
	State      widget.DisplayState `json:"state"`
	Notice     widget.NoticeCopy   `json:"notice"`
	Activities interface{}         `json:"activities"`
}

// handleState handles GET /widget/v1/state
func (h *widgetHandler) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, stateResponse{
		State:      h.engine.State(),
		Notice:     h.engine.Notice(),
		Activities: h.engine.WorkingActivities(),
	})
}

// handleShow handles POST /widget/v1/show
func (h *widgetHandler) handleShow(c *gin.Context) {
	h.engine.Show()
	c.Status(http.StatusNoContent)
}

// handleHide handles POST /widget/v1/hide
func (h *widgetHandler) handleHide(c *gin.Context) {
	h.engine.Hide()
	c.Status(http.StatusNoContent)
}

// handlePrivacyCentre handles POST /widget/v1/privacy-centre
func (h *widgetHandler) handlePrivacyCentre(c *gin.Context) {
	h.engine.OpenPrivacyCentre()
	c.JSON(http.StatusOK, stateResponse{
		State:      h.engine.State(),
		Notice:     h.engine.Notice(),
		Activities: h.engine.WorkingActivities(),
	})
}

// handleGetConsent handles GET /widget/v1/consent
func (h *widgetHandler) handleGetConsent(c *gin.Context) {
	record := h.engine.GetConsent(c.Request.Context())
	if record == nil {
		sendError(c, serviceerror.CustomServiceError(
			serviceerror.ResourceNotFoundError,
			"No consent has been recorded for this visitor",
		))
		return
	}
	c.JSON(http.StatusOK, record)
}

// handleReceipt handles GET /widget/v1/consent/receipt
func (h *widgetHandler) handleReceipt(c *gin.Context) {
	receipt, serviceErr := h.engine.DownloadReceipt(c.Request.Context())
	if serviceErr != nil {
		sendError(c, serviceErr)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="consent-receipt.json"`)
	c.Data(http.StatusOK, "application/json", receipt)
}

type decisionRequest struct {
	Decision submission.Decision `json:"decision"`
	Metadata submission.Metadata `json:"metadata"`
	Email    string              `json:"email,omitempty"`
}

// handleDecision handles POST /widget/v1/consent/decision
func (h *widgetHandler) handleDecision(c *gin.Context) {
	var request decisionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		sendError(c, serviceerror.CustomServiceError(
			serviceerror.InvalidRequestError,
			fmt.Sprintf("invalid request body: %v", err),
		))
		return
	}

	record, serviceErr := h.engine.SubmitDecision(
		c.Request.Context(), request.Decision, request.Metadata, request.Email)
	if serviceErr != nil {
		sendError(c, serviceErr)
		return
	}
	c.JSON(http.StatusCreated, record)
}

type linkConsentIDRequest struct {
	ConsentID string `json:"consentId"`
}

// handleLinkConsentID handles POST /widget/v1/identity/link
func (h *widgetHandler) handleLinkConsentID(c *gin.Context) {
	var request linkConsentIDRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.ConsentID == "" {
		sendError(c, serviceerror.CustomServiceError(
			serviceerror.ValidationError,
			"consentId is required",
		))
		return
	}

	record, serviceErr := h.engine.LinkConsentID(c.Request.Context(), request.ConsentID)
	if serviceErr != nil {
		sendError(c, serviceErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"linked": true, "consent": record})
}

type emailLinkRequest struct {
	Email string `json:"email"`
	Code  string `json:"code,omitempty"`
}

// handleRequestEmailLink handles POST /widget/v1/identity/email
func (h *widgetHandler) handleRequestEmailLink(c *gin.Context) {
	var request emailLinkRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.Email == "" {
		sendError(c, serviceerror.CustomServiceError(
			serviceerror.ValidationError,
			"email is required",
		))
		return
	}

	if serviceErr := h.engine.RequestEmailLink(c.Request.Context(), request.Email); serviceErr != nil {
		sendError(c, serviceErr)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"sent": true})
}

// handleConfirmEmailLink handles POST /widget/v1/identity/email/verify
func (h *widgetHandler) handleConfirmEmailLink(c *gin.Context) {
	var request emailLinkRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.Email == "" || request.Code == "" {
		sendError(c, serviceerror.CustomServiceError(
			serviceerror.ValidationError,
			"email and code are required",
		))
		return
	}

	record, serviceErr := h.engine.ConfirmEmailLink(c.Request.Context(), request.Email, request.Code)
	if serviceErr != nil {
		sendError(c, serviceErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"linked": true, "consent": record})
}

type languageRequest struct {
	Language string `json:"language"`
}

// handleLanguage handles POST /widget/v1/language
func (h *widgetHandler) handleLanguage(c *gin.Context) {
	var request languageRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.Language == "" {
		sendError(c, serviceerror.CustomServiceError(
			serviceerror.ValidationError,
			"language is required",
		))
		return
	}

	bundle, serviceErr := h.engine.SetLanguage(c.Request.Context(), request.Language)
	if serviceErr != nil {
		sendError(c, serviceErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"language": request.Language, "strings": bundle})
}

// sendError maps service errors to HTTP responses.
func sendError(c *gin.Context, serviceErr *serviceerror.ServiceError) {
	status := http.StatusInternalServerError
	if serviceErr.Type == serviceerror.ClientErrorType {
		status = http.StatusBadRequest
	}
	switch serviceErr.Code {
	case codes.ResourceNotFound, codes.WidgetConfigNotFound:
		status = http.StatusNotFound
	case codes.TranslationInProgress:
		status = http.StatusConflict
	case codes.SubmissionFailed:
		status = http.StatusBadGateway
	}
	c.JSON(status, apierror.NewErrorResponse(serviceErr.Error, serviceErr.ErrorDescription))
}
