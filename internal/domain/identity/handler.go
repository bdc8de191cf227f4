package identity

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/appointments/internal/platform/auth"
	"github.com/ehr/appointments/pkg/pagination"
)

type Handler struct {
	svc               *Service
	onLogout          func(doctorID string)
	onPatientsChanged func(ctx context.Context, doctorID string)
}

// NewHandler wires the identity routes. onLogout, when set, runs after a
// token has been revoked. onPatientsChanged, when set, runs after a patient
// of doctorID was created, updated or deleted.
func NewHandler(svc *Service, onLogout func(doctorID string), onPatientsChanged func(ctx context.Context, doctorID string)) *Handler {
	return &Handler{svc: svc, onLogout: onLogout, onPatientsChanged: onPatientsChanged}
}

func (h *Handler) patientsChanged(c echo.Context, doctorID string) {
	if h.onPatientsChanged != nil {
		h.onPatientsChanged(c.Request().Context(), doctorID)
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/logout", h.Logout)
	api.GET("/me", h.Me)

	api.GET("/patients", h.ListPatients)
	api.POST("/patients", h.CreatePatient)
	api.GET("/patients/:id", h.GetPatient)
	api.PATCH("/patients/:id", h.UpdatePatient)
	api.DELETE("/patients/:id", h.DeletePatient)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrDoctorReassignment):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrNotAuthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
}

func doctorID(c echo.Context) (string, error) {
	id := auth.DoctorIDFromContext(c.Request().Context())
	if id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return id, nil
}

func (h *Handler) Register(c echo.Context) error {
	var r Registration
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.RegisterDoctor(c.Request().Context(), r)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.svc.Logout(ctx); err != nil {
		return httpError(err)
	}
	if h.onLogout != nil {
		h.onLogout(auth.DoctorIDFromContext(ctx))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Me(c echo.Context) error {
	sess, err := h.svc.CurrentSession(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	if !sess.Authenticated() {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return c.JSON(http.StatusOK, sess.Doctor)
}

func (h *Handler) ListPatients(c echo.Context) error {
	did, err := doctorID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.ListPatients(c.Request().Context(), did, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) CreatePatient(c echo.Context) error {
	did, err := doctorID(c)
	if err != nil {
		return err
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePatient(c.Request().Context(), did, &p); err != nil {
		return httpError(err)
	}
	h.patientsChanged(c, did)
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	did, err := doctorID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), did, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	did, err := doctorID(c)
	if err != nil {
		return err
	}
	var u PatientUpdate
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), did, c.Param("id"), u)
	if err != nil {
		return httpError(err)
	}
	h.patientsChanged(c, did)
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	did, err := doctorID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), did, c.Param("id")); err != nil {
		return httpError(err)
	}
	h.patientsChanged(c, did)
	return c.NoContent(http.StatusNoContent)
}
