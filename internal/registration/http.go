package registration

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/club-portal/internal/apierror"
	"github.com/yourusername/club-portal/internal/logging"
)

// multipart のヘッダー分として上限に加える余裕
const multipartOverhead = 1 << 20

// Handler は登録フォームのHTTPハンドラーです。
type Handler struct {
	svc     *Service
	logger  logrus.FieldLogger
	maxBody int64
}

// NewHandler は Handler を作成します。
func NewHandler(svc *Service, maxDocumentSize int64, logger logrus.FieldLogger) *Handler {
	return &Handler{svc: svc, logger: logger, maxBody: maxDocumentSize + multipartOverhead}
}

// Register はルートを登録します。middleware は全ルートに適用されます（レート制限など）。
func (h *Handler) Register(g *gin.RouterGroup, middleware ...gin.HandlerFunc) {
	rg := g.Group("/registrations", middleware...)
	rg.POST("", h.Start)
	rg.GET("/status", h.Status)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id/steps/:step", h.SaveStep)
	rg.POST("/:id/document", h.UploadDocument)
	rg.POST("/:id/submit", h.Submit)
}

// Start は POST /api/registrations のハンドラーです。
func (h *Handler) Start(c *gin.Context) {
	draft, err := h.svc.Start(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, draft.View())
}

// Get は GET /api/registrations/:id のハンドラーです。
func (h *Handler) Get(c *gin.Context) {
	draft, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, draft.View())
}

// SaveStep は PUT /api/registrations/:id/steps/:step のハンドラーです。
func (h *Handler) SaveStep(c *gin.Context) {
	step, ok := ParseStep(c.Param("step"))
	if !ok {
		apierror.Respond(c, apierror.NotFound("STEP_NOT_FOUND", "不明なステップです"))
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	var (
		draft *Draft
		err   error
	)
	switch step {
	case StepPlayer:
		var in PlayerDetails
		if err := c.ShouldBindJSON(&in); err != nil {
			apierror.Respond(c, apierror.InvalidInput(err.Error()))
			return
		}
		draft, err = h.svc.SavePlayer(ctx, id, in)
	case StepContact:
		var in ContactDetails
		if err := c.ShouldBindJSON(&in); err != nil {
			apierror.Respond(c, apierror.InvalidInput(err.Error()))
			return
		}
		draft, err = h.svc.SaveContact(ctx, id, in)
	case StepConsent:
		var in ConsentDetails
		if err := c.ShouldBindJSON(&in); err != nil {
			apierror.Respond(c, apierror.InvalidInput(err.Error()))
			return
		}
		draft, err = h.svc.SaveConsent(ctx, id, in)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, draft.View())
}

// UploadDocument は POST /api/registrations/:id/document のハンドラーです。
func (h *Handler) UploadDocument(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)

	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierror.Respond(c, errDocumentTooLarge)
			return
		}
		apierror.Respond(c, apierror.InvalidInput("multipart/form-data の file フィールドでPDFファイルを送信してください。"))
		return
	}
	file, err := header.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer file.Close()

	draft, err := h.svc.AttachDocument(c.Request.Context(), c.Param("id"), header.Filename, file)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, draft.View())
}

// Submit は POST /api/registrations/:id/submit のハンドラーです。
func (h *Handler) Submit(c *gin.Context) {
	result, err := h.svc.Submit(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Status は GET /api/registrations/status?session_id= のハンドラーです。
func (h *Handler) Status(c *gin.Context) {
	status, err := h.svc.Status(c.Request.Context(), c.Query("session_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) fail(c *gin.Context, err error) {
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) || apiErr.Status >= http.StatusInternalServerError {
		logging.FromContext(c, h.logger).WithError(err).Error("registration request failed")
	}
	apierror.Respond(c, err)
}
