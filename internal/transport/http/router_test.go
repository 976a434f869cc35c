package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"custodia/internal/coordinator"
	"custodia/internal/delivery"
	deliverysvc "custodia/internal/delivery/service"
	"custodia/internal/ledger"
	ledgersvc "custodia/internal/ledger/service"
	"custodia/internal/platform/metrics"
	"custodia/internal/platform/middleware"
	"custodia/internal/profile"
	"custodia/pkg/domain"
)

// stubValidator resolves bearer tokens from a fixed map, standing in for the
// external identity provider.
type stubValidator struct {
	tokens map[string]domain.ActorID
}

func (v *stubValidator) ValidateToken(token string) (*middleware.Claims, error) {
	actorID, ok := v.tokens[token]
	if !ok {
		return nil, fmt.Errorf("unknown token")
	}
	return &middleware.Claims{ActorID: actorID}, nil
}

type RouterSuite struct {
	suite.Suite
	server       *httptest.Server
	ledgerSvc    *ledgersvc.Service
	profileStore *profile.InMemoryStore

	agent   domain.ActorID
	manager domain.ActorID
	admin   domain.ActorID
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	ledgerStore := ledger.NewInMemory()
	deliveryStore := delivery.NewInMemoryStore()
	s.profileStore = profile.NewInMemoryStore()

	var err error
	s.ledgerSvc, err = ledgersvc.New(ledgerStore, ledgerStore, ledgersvc.WithLogger(log))
	s.Require().NoError(err)
	deliverySvc, err := deliverysvc.New(deliveryStore, deliverysvc.WithLogger(log))
	s.Require().NoError(err)
	profileSvc, err := profile.New(s.profileStore, profile.WithLogger(log))
	s.Require().NoError(err)
	coord, err := coordinator.New(s.ledgerSvc, deliverySvc, profileSvc, log)
	s.Require().NoError(err)

	s.agent = s.seedProfile(ctx, domain.RoleFieldAgent)
	s.manager = s.seedProfile(ctx, domain.RoleDistrictManager)
	s.admin = s.seedProfile(ctx, domain.RoleAdmin)

	validator := &stubValidator{tokens: map[string]domain.ActorID{
		"agent-token":   s.agent,
		"manager-token": s.manager,
		"admin-token":   s.admin,
	}}

	handler := NewHandler(coord, log, metrics.NewWith(prometheus.NewRegistry()), validator)
	s.server = httptest.NewServer(NewRouter(handler))
	s.T().Cleanup(s.server.Close)
}

func (s *RouterSuite) seedProfile(ctx context.Context, role domain.Role) domain.ActorID {
	p := &profile.ActorProfile{
		ID:        domain.NewActorID(),
		Role:      role,
		Access:    domain.AccessApproved,
		UpdatedAt: time.Now(),
	}
	s.Require().NoError(s.profileStore.Save(ctx, p))
	return p.ID
}

func (s *RouterSuite) do(method, path, token string, body any) *http.Response {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.server.URL+path, payload)
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *RouterSuite) decode(resp *http.Response, v any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(v))
}

func (s *RouterSuite) TestAuthBoundary() {
	s.Run("healthz is open", func() {
		resp := s.do(http.MethodGet, "/healthz", "", nil)
		resp.Body.Close()
		s.Equal(http.StatusOK, resp.StatusCode)
	})

	s.Run("metrics is open", func() {
		resp := s.do(http.MethodGet, "/metrics", "", nil)
		resp.Body.Close()
		s.Equal(http.StatusOK, resp.StatusCode)
	})

	s.Run("missing token yields 401", func() {
		resp := s.do(http.MethodGet, "/stock", "", nil)
		resp.Body.Close()
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	s.Run("unknown token yields 401", func() {
		resp := s.do(http.MethodGet, "/stock", "bogus", nil)
		resp.Body.Close()
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})
}

func (s *RouterSuite) TestStockFlow() {
	s.Run("receive then inspect balance", func() {
		resp := s.do(http.MethodPost, "/stock/receive", "agent-token", map[string]any{
			"quantity":     10,
			"source_label": "head office",
		})
		s.Equal(http.StatusCreated, resp.StatusCode)
		var entry ledger.StockTransaction
		s.decode(resp, &entry)
		s.Equal(10, entry.Quantity)

		resp = s.do(http.MethodGet, "/stock/balance/"+entry.CustodianID.String(), "agent-token", nil)
		s.Equal(http.StatusOK, resp.StatusCode)
		var balance struct {
			Balance int `json:"balance"`
		}
		s.decode(resp, &balance)
		s.Equal(10, balance.Balance)
	})

	s.Run("manager receives 403 with an error envelope", func() {
		resp := s.do(http.MethodPost, "/stock/receive", "manager-token", map[string]any{
			"quantity": 5,
		})
		s.Equal(http.StatusForbidden, resp.StatusCode)
		var envelope map[string]string
		s.decode(resp, &envelope)
		s.Equal("unauthorized", envelope["error"])
	})

	s.Run("invalid quantity yields 400", func() {
		resp := s.do(http.MethodPost, "/stock/receive", "agent-token", map[string]any{
			"quantity": -1,
		})
		resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("transfer from an external supplier", func() {
		resp := s.do(http.MethodPost, "/custodians", "admin-token", map[string]string{
			"name": "Clinic One",
		})
		s.Equal(http.StatusCreated, resp.StatusCode)
		var clinic ledger.Custodian
		s.decode(resp, &clinic)

		resp = s.do(http.MethodPost, "/stock/transfer", "agent-token", map[string]any{
			"destination_custodian_id": clinic.ID.String(),
			"quantity":                 6,
			"source_kind":              "external",
			"source_label":             "wholesaler",
		})
		s.Equal(http.StatusCreated, resp.StatusCode)
		var result coordinator.TransferResult
		s.decode(resp, &result)
		s.Nil(result.Outbound)
		s.Require().NotNil(result.Inbound)
		s.Equal(6, result.Inbound.Quantity)
	})

	s.Run("invalid source kind yields 400", func() {
		resp := s.do(http.MethodPost, "/stock/transfer", "agent-token", map[string]any{
			"destination_custodian_id": domain.NewCustodianID().String(),
			"quantity":                 1,
			"source_kind":              "warehouse",
		})
		resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})
}

func (s *RouterSuite) TestDeliveryFlow() {
	newClinic := func() ledger.Custodian {
		resp := s.do(http.MethodPost, "/custodians", "admin-token", map[string]string{"name": "Clinic"})
		s.Require().Equal(http.StatusCreated, resp.StatusCode)
		var clinic ledger.Custodian
		s.decode(resp, &clinic)

		resp = s.do(http.MethodPost, "/stock/transfer", "agent-token", map[string]any{
			"destination_custodian_id": clinic.ID.String(),
			"quantity":                 5,
			"source_kind":              "external",
			"source_label":             "wholesaler",
		})
		s.Require().Equal(http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
		return clinic
	}

	s.Run("record, duplicate warning, acknowledged retry", func() {
		clinic := newClinic()
		draft := map[string]any{
			"patient_id":        domain.PatientID(domain.NewActorID()).String(),
			"prescriber_id":     domain.PrescriberID(domain.NewActorID()).String(),
			"product_id":        domain.ProductID(domain.NewActorID()).String(),
			"quantity":          1,
			"custodian_id":      clinic.ID.String(),
			"delivery_date":     time.Now().Format(time.RFC3339),
			"prescription_date": time.Now().AddDate(0, 0, -3).Format(time.RFC3339),
		}

		resp := s.do(http.MethodPost, "/deliveries", "agent-token", draft)
		s.Equal(http.StatusCreated, resp.StatusCode)
		var first coordinator.DeliveryResult
		s.decode(resp, &first)
		s.Require().NotNil(first.Delivery)

		resp = s.do(http.MethodPost, "/deliveries", "agent-token", draft)
		s.Equal(http.StatusConflict, resp.StatusCode)
		var warned coordinator.DeliveryResult
		s.decode(resp, &warned)
		s.True(warned.DuplicateWarning)
		s.Nil(warned.Delivery)

		draft["acknowledge_duplicate"] = true
		resp = s.do(http.MethodPost, "/deliveries", "agent-token", draft)
		s.Equal(http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	})

	s.Run("missing references yield 400", func() {
		resp := s.do(http.MethodPost, "/deliveries", "agent-token", map[string]any{
			"quantity": 1,
		})
		resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("delete delivery credits the custodian back", func() {
		clinic := newClinic()
		draft := map[string]any{
			"patient_id":        domain.PatientID(domain.NewActorID()).String(),
			"prescriber_id":     domain.PrescriberID(domain.NewActorID()).String(),
			"product_id":        domain.ProductID(domain.NewActorID()).String(),
			"quantity":          2,
			"custodian_id":      clinic.ID.String(),
			"delivery_date":     time.Now().Format(time.RFC3339),
			"prescription_date": time.Now().Format(time.RFC3339),
		}
		resp := s.do(http.MethodPost, "/deliveries", "agent-token", draft)
		s.Require().Equal(http.StatusCreated, resp.StatusCode)
		var result coordinator.DeliveryResult
		s.decode(resp, &result)

		resp = s.do(http.MethodDelete, "/records/delivery/"+result.Delivery.ID.String(), "agent-token", nil)
		resp.Body.Close()
		s.Equal(http.StatusNoContent, resp.StatusCode)

		resp = s.do(http.MethodGet, "/stock/balance/"+clinic.ID.String(), "agent-token", nil)
		var balance struct {
			Balance int `json:"balance"`
		}
		s.decode(resp, &balance)
		s.Equal(5, balance.Balance)
	})

	s.Run("unknown record kind yields 400", func() {
		resp := s.do(http.MethodDelete, "/records/ledger/"+domain.NewTransactionID().String(), "agent-token", nil)
		resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})
}

func (s *RouterSuite) TestTeamAndSession() {
	s.Run("rollup for an agent is their own node", func() {
		resp := s.do(http.MethodGet, "/team/rollup", "agent-token", nil)
		s.Equal(http.StatusOK, resp.StatusCode)
		var rollup struct {
			Count int `json:"count"`
		}
		s.decode(resp, &rollup)
		s.Equal(0, rollup.Count)
	})

	s.Run("profile updates are admin only", func() {
		role := string(domain.RoleDistrictManager)
		resp := s.do(http.MethodPut, "/profiles/"+s.agent.String(), "agent-token", map[string]any{"role": role})
		resp.Body.Close()
		s.Equal(http.StatusForbidden, resp.StatusCode)

		resp = s.do(http.MethodPut, "/profiles/"+s.agent.String(), "admin-token", map[string]any{"role": role})
		s.Equal(http.StatusOK, resp.StatusCode)
		var updated profile.ActorProfile
		s.decode(resp, &updated)
		s.Equal(domain.RoleDistrictManager, updated.Role)
	})

	s.Run("session termination returns 204", func() {
		resp := s.do(http.MethodDelete, "/session", "agent-token", nil)
		resp.Body.Close()
		s.Equal(http.StatusNoContent, resp.StatusCode)
	})
}
