package scheduling

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/appointments/internal/domain/identity"
)

// SessionProvider resolves the signed-in doctor of a request.
type SessionProvider interface {
	CurrentSession(ctx context.Context) (identity.Session, error)
}

type Handler struct {
	sessions *Sessions
	auth     SessionProvider
}

func NewHandler(sessions *Sessions, auth SessionProvider) *Handler {
	return &Handler{sessions: sessions, auth: auth}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/workspace", h.GetWorkspace)
	api.POST("/workspace/reload", h.Reload)
	api.POST("/workspace/mode", h.ChangeMode)
	api.PUT("/workspace/view", h.ChangeView)
	api.DELETE("/workspace/error", h.ClearError)

	api.GET("/appointments", h.ListAppointments)
	api.GET("/appointments/:id", h.GetAppointment)
	api.POST("/appointments", h.CreateAppointment)
	api.PATCH("/appointments/:id", h.UpdateAppointment)
	api.DELETE("/appointments/:id", h.DeleteAppointment)

	api.GET("/calendar", h.Calendar)
	api.GET("/dashboard", h.Dashboard)
}

func httpError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrNoSession):
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	case errors.Is(err, ErrUnknownPatient):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrBusy):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrRepositoryFailure):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error()).SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
}

// workspace resolves the caller's orchestrator. A failed initial load is not
// an error here: the workspace carries it as its banner message.
func (h *Handler) workspace(c echo.Context) (*Orchestrator, error) {
	ctx := c.Request().Context()
	sess, err := h.auth.CurrentSession(ctx)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "resolve session").SetInternal(err)
	}
	o, err := h.sessions.Get(ctx, sess)
	if o == nil {
		return nil, httpError(err)
	}
	return o, nil
}

// -- Workspace --

func (h *Handler) GetWorkspace(c echo.Context) error {
	o, err := h.workspace(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o.Snapshot())
}

func (h *Handler) Reload(c echo.Context) error {
	o, err := h.workspace(c)
	if err != nil {
		return err
	}
	if err := o.Load(c.Request().Context()); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, o.Snapshot())
}

type modeRequest struct {
	Action        string `json:"action"`
	AppointmentID string `json:"appointmentId"`
}

func (h *Handler) ChangeMode(c echo.Context) error {
	o, err := h.workspace(c)
	if err != nil {
		return err
	}
	var req modeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	switch req.Action {
	case "add":
		err = o.StartCreate()
	case "edit":
		err = o.StartEdit(req.AppointmentID)
	case "view":
		err = o.ViewDetails(req.AppointmentID)
	case "close", "cancel":
		o.Close()
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "action must be add, edit, view or close")
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, o.Mode())
}

type viewRequest struct {
	Date     string `json:"date"`
	ViewType string `json:"viewType"`
}

func (h *Handler) ChangeView(c echo.Context) error {
	o, err := h.workspace(c)
	if err != nil {
		return err
	}
	var req viewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Date != "" {
		d, err := ParseDate(req.Date)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		o.ChangeSelectedDate(d)
	}
	if req.ViewType != "" {
		vt, err := ParseViewType(req.ViewType)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if err := o.ChangeViewType(vt); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusOK, o.Snapshot())
}

func (h *Handler) ClearError(c echo.Context) error {
	o, err := h.workspace(c)
	if err != nil {
		return err
	}
	o.ClearError()
	return c.NoContent(http.StatusNoContent)
}

// -- Appointments --

func (h *Handler) ListAppointments(c echo.Context) error {
	o, err := h.workspace(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o.ManagementList())
}

func (h *Handler) GetAppointment(c echo.Context) error {
	o, err := h.workspace(c)
	if err != nil {
		return err
	}
	d, err := o.Appointment(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	o, err := h.workspace(c)
	if err != nil {
		return err
	}
	var d AppointmentDraft
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := o.AddAppointment(c.Request().Context(), d)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	o, err := h.workspace(c)
	if err != nil {
		return err
	}
	var u AppointmentUpdate
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := o.UpdateAppointment(c.Request().Context(), c.Param("id"), u)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	o, err := h.workspace(c)
	if err != nil {
		return err
	}
	if err := o.DeleteAppointment(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Views --

type calendarResponse struct {
	Date         string               `json:"date"`
	ViewType     ViewType             `json:"viewType"`
	Appointments []AppointmentDetails `json:"appointments"`
	Week         []DayColumnDetails   `json:"week,omitempty"`
}

// Calendar renders the day or week view for ?date= (default today) and
// ?view=. The query selects the workspace's date and view type, as the
// calendar page does.
func (h *Handler) Calendar(c echo.Context) error {
	o, err := h.workspace(c)
	if err != nil {
		return err
	}
	date := o.now()
	if q := c.QueryParam("date"); q != "" {
		date, err = ParseDate(q)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
		}
	}
	vt, err := ParseViewType(c.QueryParam("view"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o.ChangeSelectedDate(date)
	if err := o.ChangeViewType(vt); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	s := o.Snapshot()
	return c.JSON(http.StatusOK, calendarResponse{
		Date:         s.SelectedDate,
		ViewType:     s.ViewType,
		Appointments: s.View,
		Week:         s.Week,
	})
}

type dashboardResponse struct {
	Today         []AppointmentDetails `json:"today"`
	Upcoming      []AppointmentDetails `json:"upcoming"`
	Stats         Stats                `json:"stats"`
	TotalPatients int                  `json:"totalPatients"`
	Error         string               `json:"error,omitempty"`
}

func (h *Handler) Dashboard(c echo.Context) error {
	o, err := h.workspace(c)
	if err != nil {
		return err
	}
	s := o.Snapshot()
	return c.JSON(http.StatusOK, dashboardResponse{
		Today:         s.Today,
		Upcoming:      s.Upcoming,
		Stats:         s.Stats,
		TotalPatients: s.TotalPatients,
		Error:         s.Error,
	})
}
