package routing_test

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/mock/gomock"

	"github.com/neighborhoods/docker-oversip/assertion"
	"github.com/neighborhoods/docker-oversip/internal/siptest"
	"github.com/neighborhoods/docker-oversip/internal/testutil/sipmock"
	"github.com/neighborhoods/docker-oversip/log"
	"github.com/neighborhoods/docker-oversip/outbound"
	"github.com/neighborhoods/docker-oversip/proxy"
	"github.com/neighborhoods/docker-oversip/routing"
	"github.com/neighborhoods/docker-oversip/sip"
	"github.com/neighborhoods/docker-oversip/uri"
)

const localHost = "proxy.example.net"

var locality = routing.LocalityFunc(func(u uri.SIP) bool { return u.Host == localHost })

var (
	localRoute   = uri.MustParse("sip:" + localHost + ";lr")
	foreignRoute = uri.MustParse("sip:edge.example.org;lr")
	clientAddr   = netip.MustParseAddrPort("198.51.100.7:50600")
)

type routerDeps struct {
	engine   *sipmock.MockEngine
	mangler  *sipmock.MockOutboundMangler
	asserter *sipmock.MockUserAsserter
}

func newRouter(t *testing.T, cfg routing.Config) (*routing.Router, routerDeps) {
	t.Helper()

	ctrl := gomock.NewController(t)
	deps := routerDeps{
		engine:   sipmock.NewMockEngine(ctrl),
		mangler:  sipmock.NewMockOutboundMangler(ctrl),
		asserter: sipmock.NewMockUserAsserter(ctrl),
	}
	r, err := routing.NewRouter(&routing.RouterOptions{
		Config:   cfg,
		Engine:   deps.engine,
		Locality: locality,
		Mangler:  deps.mangler,
		Asserter: deps.asserter,
		Logger:   log.Noop,
	})
	if err != nil {
		t.Fatalf("routing.NewRouter() error = %v, want nil", err)
	}
	return r, deps
}

func newRequest(method, ruri string, mod func(o *siptest.RequestOptions)) *siptest.Request {
	opts := siptest.RequestOptions{
		Method:     method,
		RequestURI: uri.MustParse(ruri),
		From:       uri.MustParse("sip:alice@example.com"),
		To:         uri.MustParse("sip:bob@example.com"),
		Headers:    map[string]string{"User-Agent": "softphone/1.0"},
		Conn:       siptest.NewConn("TCP", clientAddr),
	}
	if mod != nil {
		mod(&opts)
	}
	return siptest.NewRequest(opts)
}

// captureRoute expects exactly one Route call and stores the routed transaction.
func captureRoute(engine *sipmock.MockEngine, req sip.Request, tx **proxy.Transaction) {
	engine.EXPECT().
		Route(gomock.Any(), gomock.Any(), req).
		DoAndReturn(func(_ context.Context, routed *proxy.Transaction, _ sip.Request) error {
			*tx = routed
			return nil
		}).
		Times(1)
}

func checkReplies(t *testing.T, req *siptest.Request, want []siptest.Reply) {
	t.Helper()

	if diff := cmp.Diff(req.Replies(), want); diff != "" {
		t.Errorf("replies mismatch (-got +want):\n%s", diff)
	}
}

func TestNewRouter_Validation(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	engine := sipmock.NewMockEngine(ctrl)

	cases := []struct {
		name string
		opts *routing.RouterOptions
	}{
		{"nil options", nil},
		{"missing engine", &routing.RouterOptions{Locality: locality}},
		{"missing locality", &routing.RouterOptions{Engine: engine}},
		{"mangling without mangler", &routing.RouterOptions{
			Config: routing.Config{OutboundMangling: true}, Engine: engine, Locality: locality,
		}},
		{"assertion without asserter", &routing.RouterOptions{
			Config: routing.Config{UserAssertion: true}, Engine: engine, Locality: locality,
		}},
		{"max forwards out of range", &routing.RouterOptions{
			Config: routing.Config{MaxForwards: 300}, Engine: engine, Locality: locality,
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			r, err := routing.NewRouter(c.opts)
			if !errors.Is(err, sip.ErrInvalidArgument) {
				t.Errorf("routing.NewRouter() error = %v, want %v", err, sip.ErrInvalidArgument)
			}
			if r != nil {
				t.Errorf("routing.NewRouter() = %v, want nil", r)
			}
		})
	}
}

func TestRouter_MaxForwards(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		ceiling int
		in      *int
		want    int
	}{
		{"absent", 0, nil, routing.DefaultMaxForwards},
		{"above ceiling", 0, siptest.Ptr(70), routing.DefaultMaxForwards},
		{"at ceiling", 0, siptest.Ptr(10), 9},
		{"below ceiling", 0, siptest.Ptr(5), 4},
		{"last hop", 0, siptest.Ptr(1), 0},
		{"custom ceiling", 20, siptest.Ptr(70), 20},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			r, deps := newRouter(t, routing.Config{MaxForwards: c.ceiling})
			req := newRequest("OPTIONS", "sip:bob@example.com", func(o *siptest.RequestOptions) { o.MaxForwards = c.in })
			deps.engine.EXPECT().Route(gomock.Any(), gomock.Any(), req).Return(nil)

			if got := r.OnRequest(t.Context(), req); got != routing.OutcomeRouted {
				t.Fatalf("r.OnRequest() = %v, want %v", got, routing.OutcomeRouted)
			}
			if got, ok := req.MaxForwards(); !ok || got != c.want {
				t.Errorf("req.MaxForwards() = (%d, %v), want (%d, true)", got, ok, c.want)
			}
		})
	}
}

func TestRouter_HopLimitExhausted(t *testing.T) {
	t.Parallel()

	for _, method := range []string{"INVITE", "ACK", "REGISTER", "BYE"} {
		t.Run(method, func(t *testing.T) {
			t.Parallel()

			// no engine expectations: creating a transaction fails the test
			r, _ := newRouter(t, routing.Config{OutboundMangling: true, UserAssertion: true})
			req := newRequest(method, "sip:bob@example.com", func(o *siptest.RequestOptions) {
				o.MaxForwards = siptest.Ptr(0)
			})

			want, wantReplies := routing.OutcomeRejected, []siptest.Reply{{Status: sip.ResponseStatusTooManyHops, Reason: routing.ReasonTooManyHops}}
			if method == "ACK" {
				want, wantReplies = routing.OutcomeDropped, nil
			}
			if got := r.OnRequest(t.Context(), req); got != want {
				t.Errorf("r.OnRequest() = %v, want %v", got, want)
			}
			checkReplies(t, req, wantReplies)
			if req.NATFixed() {
				t.Error("NAT fixed for a request rejected on the hop count")
			}
		})
	}
}

func TestRouter_ForbiddenRoutes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		toTag  string
		routes []uri.SIP
		reason string
	}{
		{"in-dialog without route", "a6c85cf", nil, routing.ReasonForbiddenInDialog},
		{"in-dialog with foreign route", "a6c85cf", []uri.SIP{foreignRoute}, routing.ReasonForbiddenInDialog},
		{"initial with pre-loaded route", "", []uri.SIP{foreignRoute, localRoute}, routing.ReasonPreloadedRoute},
	}
	methods := []string{"ACK", "BYE", "INVITE", "MESSAGE", "REGISTER", "FOO"}

	for _, c := range cases {
		for _, method := range methods {
			t.Run(c.name+"/"+method, func(t *testing.T) {
				t.Parallel()

				r, _ := newRouter(t, routing.Config{})
				req := newRequest(method, "sip:bob@example.com", func(o *siptest.RequestOptions) {
					o.ToTag = c.toTag
					o.Routes = c.routes
				})

				got := r.OnRequest(t.Context(), req)
				if !req.NATFixed() {
					t.Error("req.NATFixed() = false, want true")
				}
				if method == "ACK" {
					if got != routing.OutcomeDropped {
						t.Errorf("r.OnRequest() = %v, want %v", got, routing.OutcomeDropped)
					}
					checkReplies(t, req, nil)
					return
				}
				if got != routing.OutcomeRejected {
					t.Errorf("r.OnRequest() = %v, want %v", got, routing.OutcomeRejected)
				}
				checkReplies(t, req, []siptest.Reply{{Status: sip.ResponseStatusForbidden, Reason: c.reason}})
			})
		}
	}
}

func TestRouter_InDialogLooseRoute(t *testing.T) {
	t.Parallel()

	for _, method := range []string{"BYE", "ACK", "INVITE", "FOO"} {
		t.Run(method, func(t *testing.T) {
			t.Parallel()

			r, deps := newRouter(t, routing.Config{OutboundMangling: true, UserAssertion: true})
			req := newRequest(method, "sip:bob@192.0.2.20:5060", func(o *siptest.RequestOptions) {
				o.ToTag = "314159"
				o.Routes = []uri.SIP{localRoute, foreignRoute}
			})
			var tx *proxy.Transaction
			captureRoute(deps.engine, req, &tx)

			if got := r.OnRequest(t.Context(), req); got != routing.OutcomeRouted {
				t.Fatalf("r.OnRequest() = %v, want %v", got, routing.OutcomeRouted)
			}
			checkReplies(t, req, nil)
			if got, want := tx.Mode(), proxy.ModeInDialog; got != want {
				t.Errorf("tx.Mode() = %v, want %v", got, want)
			}
			if got := tx.Handlers().Kinds(); len(got) != 0 {
				t.Errorf("tx.Handlers().Kinds() = %v, want none", got)
			}
		})
	}
}

func TestRouter_InitialWithLocalRoute(t *testing.T) {
	t.Parallel()

	r, deps := newRouter(t, routing.Config{})
	req := newRequest("MESSAGE", "sip:bob@example.com", func(o *siptest.RequestOptions) {
		o.Routes = []uri.SIP{localRoute}
	})
	var tx *proxy.Transaction
	captureRoute(deps.engine, req, &tx)

	if got := r.OnRequest(t.Context(), req); got != routing.OutcomeRouted {
		t.Fatalf("r.OnRequest() = %v, want %v", got, routing.OutcomeRouted)
	}
	if got, want := tx.Mode(), proxy.ModeGeneric; got != want {
		t.Errorf("tx.Mode() = %v, want %v", got, want)
	}
}

func TestRouter_OutboundPreemptsDispatch(t *testing.T) {
	t.Parallel()

	// OPTIONS, BYE and FOO would otherwise be routed or rejected by method,
	// REGISTER and PUBLISH target this server.
	cases := []struct {
		method string
		ruri   string
	}{
		{"OPTIONS", "sip:bob@example.com;ov-ob=token"},
		{"BYE", "sip:bob@example.com;ov-ob=token"},
		{"FOO", "sip:bob@example.com;ov-ob=token"},
		{"PUBLISH", "sip:bob@" + localHost + ";ov-ob=token"},
		{"INVITE", "sip:2125551212@example.com;ov-ob=token"},
	}
	for _, c := range cases {
		t.Run(c.method, func(t *testing.T) {
			t.Parallel()

			r, deps := newRouter(t, routing.Config{OutboundMangling: true, UserAssertion: true})
			req := newRequest(c.method, c.ruri, nil)
			target := siptest.NewConn("TLS", netip.MustParseAddrPort("203.0.113.9:41000"))

			deps.mangler.EXPECT().
				ExtractFromRURI(gomock.Any(), req).
				DoAndReturn(func(_ context.Context, req sip.Request) bool {
					req.SetRequestURI(req.RequestURI().WithoutParam("ov-ob"))
					req.SetOutboundTarget(target)
					return true
				})
			var tx *proxy.Transaction
			captureRoute(deps.engine, req, &tx)

			if got := r.OnRequest(t.Context(), req); got != routing.OutcomeRouted {
				t.Fatalf("r.OnRequest() = %v, want %v", got, routing.OutcomeRouted)
			}
			checkReplies(t, req, nil)
			if got, want := tx.Mode(), proxy.ModeOutboundFlow; got != want {
				t.Errorf("tx.Mode() = %v, want %v", got, want)
			}
			wantKinds := []proxy.EventKind{proxy.EventSuccess, proxy.EventFailure, proxy.EventError}
			if diff := cmp.Diff(tx.Handlers().Kinds(), wantKinds); diff != "" {
				t.Errorf("tx.Handlers().Kinds() mismatch (-got +want):\n%s", diff)
			}
			// Outbound delivery skips normalization.
			if got := req.RequestURI().User; c.method == "INVITE" && got != "2125551212" {
				t.Errorf("req.RequestURI().User = %q, want unchanged", got)
			}
		})
	}
}

func TestRouter_OutboundTokenWithoutTarget(t *testing.T) {
	t.Parallel()

	r, deps := newRouter(t, routing.Config{OutboundMangling: true})
	req := newRequest("FOO", "sip:bob@example.com;ov-ob=stale", nil)
	deps.mangler.EXPECT().ExtractFromRURI(gomock.Any(), req).Return(false)

	if got := r.OnRequest(t.Context(), req); got != routing.OutcomeRejected {
		t.Errorf("r.OnRequest() = %v, want %v", got, routing.OutcomeRejected)
	}
	checkReplies(t, req, []siptest.Reply{{Status: sip.ResponseStatusNotImplemented, Reason: routing.ReasonNotImplemented}})
}

func TestRouter_DestinationMyself(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		ruri string
		to   string
		want bool
	}{
		{"request uri", "sip:" + localHost, "sip:bob@example.com", true},
		{"request uri with user", "sip:bob@" + localHost + ":5060", "sip:bob@example.com", true},
		{"to without ruri user", "sip:example.com", "sip:" + localHost, true},
		{"to with ruri user", "sip:bob@example.com", "sip:" + localHost, false},
		{"elsewhere", "sip:bob@example.com", "sip:bob@example.com", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			r, deps := newRouter(t, routing.Config{})
			req := newRequest("PUBLISH", c.ruri, func(o *siptest.RequestOptions) { o.To = uri.MustParse(c.to) })

			want := routing.OutcomeRouted
			var wantReplies []siptest.Reply
			if c.want {
				want = routing.OutcomeReplied
				wantReplies = []siptest.Reply{{Status: sip.ResponseStatusNotFound, Reason: routing.ReasonDestinationMyself}}
			} else {
				deps.engine.EXPECT().Route(gomock.Any(), gomock.Any(), req).Return(nil)
			}

			if got := r.OnRequest(t.Context(), req); got != want {
				t.Errorf("r.OnRequest() = %v, want %v", got, want)
			}
			checkReplies(t, req, wantReplies)
		})
	}
}

func TestRouter_AckToMyselfDropped(t *testing.T) {
	t.Parallel()

	for _, ruri := range []string{"sip:" + localHost, "sip:bob@" + localHost} {
		t.Run(ruri, func(t *testing.T) {
			t.Parallel()

			// no engine expectations: creating a transaction fails the test
			r, _ := newRouter(t, routing.Config{})
			req := newRequest("ACK", ruri, nil)

			if got := r.OnRequest(t.Context(), req); got != routing.OutcomeDropped {
				t.Errorf("r.OnRequest() = %v, want %v", got, routing.OutcomeDropped)
			}
			checkReplies(t, req, nil)
		})
	}
}

func TestRouter_InviteNormalization(t *testing.T) {
	t.Parallel()

	r, deps := newRouter(t, routing.Config{})
	req := newRequest("INVITE", "sip:12125551212@example.com;user=phone", func(o *siptest.RequestOptions) {
		o.From = uri.MustParse("sip:0114930123456@example.com")
		o.To = uri.MustParse("sip:911@example.com")
	})
	deps.engine.EXPECT().Route(gomock.Any(), gomock.Any(), req).Return(nil)

	if got := r.OnRequest(t.Context(), req); got != routing.OutcomeRouted {
		t.Fatalf("r.OnRequest() = %v, want %v", got, routing.OutcomeRouted)
	}
	got := []string{req.RequestURI().String(), req.From().String(), req.To().String()}
	want := []string{"sip:+12125551212@example.com;user=phone", "sip:+4930123456@example.com", "sip:911@example.com"}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("URIs mismatch (-got +want):\n%s", diff)
	}
}

func TestRouter_NonInviteNotNormalized(t *testing.T) {
	t.Parallel()

	r, deps := newRouter(t, routing.Config{})
	req := newRequest("MESSAGE", "sip:12125551212@example.com", nil)
	deps.engine.EXPECT().Route(gomock.Any(), gomock.Any(), req).Return(nil)

	r.OnRequest(t.Context(), req)
	if got, want := req.RequestURI().User, "12125551212"; got != want {
		t.Errorf("req.RequestURI().User = %q, want %q", got, want)
	}
}

func TestRouter_GenericForward(t *testing.T) {
	t.Parallel()

	allKinds := []proxy.EventKind{
		proxy.EventProvisional, proxy.EventSuccess, proxy.EventFailure, proxy.EventError, proxy.EventInviteTimeout,
	}
	for _, method := range []string{"INVITE", "MESSAGE", "OPTIONS", "SUBSCRIBE", "PUBLISH", "REFER"} {
		for _, assertion := range []bool{false, true} {
			name := method
			if assertion {
				name += "/assertion"
			}
			t.Run(name, func(t *testing.T) {
				t.Parallel()

				r, deps := newRouter(t, routing.Config{UserAssertion: assertion})
				req := newRequest(method, "sip:bob@example.com", nil)

				var tx *proxy.Transaction
				if assertion {
					gomock.InOrder(
						deps.asserter.EXPECT().AddPAI(gomock.Any(), req).Times(1),
						deps.engine.EXPECT().
							Route(gomock.Any(), gomock.Any(), req).
							DoAndReturn(func(_ context.Context, routed *proxy.Transaction, _ sip.Request) error {
								tx = routed
								return nil
							}),
					)
				} else {
					captureRoute(deps.engine, req, &tx)
				}

				if got := r.OnRequest(t.Context(), req); got != routing.OutcomeRouted {
					t.Fatalf("r.OnRequest() = %v, want %v", got, routing.OutcomeRouted)
				}
				checkReplies(t, req, nil)
				if got, want := tx.Mode(), proxy.ModeGeneric; got != want {
					t.Errorf("tx.Mode() = %v, want %v", got, want)
				}
				if got, want := tx.Method(), sip.ParseRequestMethod(method); got != want {
					t.Errorf("tx.Method() = %v, want %v", got, want)
				}
				if diff := cmp.Diff(tx.Handlers().Kinds(), allKinds); diff != "" {
					t.Errorf("tx.Handlers().Kinds() mismatch (-got +want):\n%s", diff)
				}
			})
		}
	}
}

func TestRouter_NotImplemented(t *testing.T) {
	t.Parallel()

	for _, method := range []string{"BYE", "CANCEL", "FOO", "invite"} {
		t.Run(method, func(t *testing.T) {
			t.Parallel()

			r, _ := newRouter(t, routing.Config{UserAssertion: true})
			req := newRequest(method, "sip:bob@example.com", nil)

			if got := r.OnRequest(t.Context(), req); got != routing.OutcomeRejected {
				t.Errorf("r.OnRequest() = %v, want %v", got, routing.OutcomeRejected)
			}
			checkReplies(t, req, []siptest.Reply{{Status: sip.ResponseStatusNotImplemented, Reason: routing.ReasonNotImplemented}})
		})
	}
}

func TestRouter_InitialAckDropped(t *testing.T) {
	t.Parallel()

	r, _ := newRouter(t, routing.Config{})
	req := newRequest("ACK", "sip:bob@example.com", nil)

	if got := r.OnRequest(t.Context(), req); got != routing.OutcomeDropped {
		t.Errorf("r.OnRequest() = %v, want %v", got, routing.OutcomeDropped)
	}
	checkReplies(t, req, nil)
}

func TestRouter_Register(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		cfg       routing.Config
		status    sip.ResponseStatus
		asserts   int
		revokes   int
		contactOb bool
	}{
		{"success with assertion", routing.Config{UserAssertion: true}, sip.ResponseStatusOK, 1, 0, false},
		{"challenge with assertion", routing.Config{UserAssertion: true}, sip.ResponseStatusUnauthorized, 0, 1, false},
		{"forbidden with assertion", routing.Config{UserAssertion: true}, sip.ResponseStatusForbidden, 0, 1, false},
		{"success without assertion", routing.Config{}, sip.ResponseStatusOK, 0, 0, false},
		{"failure without assertion", routing.Config{}, sip.ResponseStatusUnauthorized, 0, 0, false},
		{"success with mangling", routing.Config{OutboundMangling: true, UserAssertion: true}, sip.ResponseStatusOK, 1, 0, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			r, deps := newRouter(t, c.cfg)
			req := newRequest("REGISTER", "sip:example.com", nil)

			if c.cfg.OutboundMangling {
				deps.mangler.EXPECT().ExtractFromRURI(gomock.Any(), req).Return(false)
			}
			if c.contactOb {
				deps.mangler.EXPECT().AddOutboundToContact(gomock.Any()).Times(1)
			}
			var tx *proxy.Transaction
			captureRoute(deps.engine, req, &tx)

			if got := r.OnRequest(t.Context(), req); got != routing.OutcomeRouted {
				t.Fatalf("r.OnRequest() = %v, want %v", got, routing.OutcomeRouted)
			}
			if got, want := tx.Mode(), proxy.ModeRegister; got != want {
				t.Errorf("tx.Mode() = %v, want %v", got, want)
			}

			res := &sip.Response{Status: c.status, Request: req}
			deps.asserter.EXPECT().AssertConnection(gomock.Any(), res).Times(c.asserts)
			deps.asserter.EXPECT().RevokeAssertion(gomock.Any(), res).Times(c.revokes)

			if err := tx.RecvResponse(t.Context(), res); err != nil {
				t.Fatalf("tx.RecvResponse() error = %v, want nil", err)
			}
			// A retransmitted final response never reaches the asserter again.
			if err := tx.RecvResponse(t.Context(), res); err == nil {
				t.Error("second final response accepted, want error")
			}
		})
	}
}

func TestRouter_RegisterContactRewriter(t *testing.T) {
	t.Parallel()

	r, deps := newRouter(t, routing.Config{OutboundMangling: true})
	req := newRequest("REGISTER", "sip:example.com", nil)

	deps.mangler.EXPECT().ExtractFromRURI(gomock.Any(), req).Return(false)
	deps.mangler.EXPECT().
		AddOutboundToContact(gomock.Any()).
		Do(func(tx *proxy.Transaction) {
			tx.SetContactRewriter(func(c uri.SIP, _ sip.Connection) uri.SIP { return c.WithParam("ob", "") })
		})
	var tx *proxy.Transaction
	captureRoute(deps.engine, req, &tx)

	r.OnRequest(t.Context(), req)

	contact := uri.MustParse("sip:alice@198.51.100.7:50600;transport=tcp")
	if got, want := tx.RewriteContact(contact, req.Connection()).String(), "sip:alice@198.51.100.7:50600;transport=tcp;ob"; got != want {
		t.Errorf("tx.RewriteContact() = %q, want %q", got, want)
	}
}

var (
	_ routing.ConnectionObserver = (*outbound.Mangler)(nil)
	_ routing.ConnectionObserver = (*assertion.Store)(nil)
)

func TestRouter_ConnectionClosed(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	mangler, err := outbound.NewMangler(&outbound.ManglerOptions{Logger: log.Noop})
	if err != nil {
		t.Fatalf("outbound.NewMangler() error = %v, want nil", err)
	}
	store := assertion.NewStore(&assertion.StoreOptions{Logger: log.Noop})

	var last *proxy.Transaction
	r, err := routing.NewRouter(&routing.RouterOptions{
		Config: routing.Config{OutboundMangling: true, UserAssertion: true},
		Engine: proxy.EngineFunc(func(_ context.Context, tx *proxy.Transaction, _ sip.Request) error {
			last = tx
			return nil
		}),
		Locality: locality,
		Mangler:  mangler,
		Asserter: store,
		Logger:   log.Noop,
	})
	if err != nil {
		t.Fatalf("routing.NewRouter() error = %v, want nil", err)
	}

	client := siptest.NewConn("TLS", clientAddr)
	reg := newRequest("REGISTER", "sip:example.com", func(o *siptest.RequestOptions) {
		o.To = o.From
		o.Conn = client
	})
	if got := r.OnRequest(ctx, reg); got != routing.OutcomeRouted {
		t.Fatalf("r.OnRequest(REGISTER) = %v, want %v", got, routing.OutcomeRouted)
	}
	contact := last.RewriteContact(uri.MustParse("sip:alice@10.0.0.5:5061;transport=tls"), client)
	if err := last.RecvResponse(ctx, &sip.Response{Status: sip.ResponseStatusOK, Request: reg}); err != nil {
		t.Fatalf("tx.RecvResponse(200) error = %v, want nil", err)
	}

	toContact := func() *siptest.Request {
		return newRequest("OPTIONS", contact.String(), func(o *siptest.RequestOptions) {
			o.Conn = siptest.NewConn("UDP", netip.MustParseAddrPort("203.0.113.5:5060"))
		})
	}

	req := toContact()
	r.OnRequest(ctx, req)
	if got, ok := req.OutboundTarget(); !ok || got != client {
		t.Fatalf("req.OutboundTarget() = (%v, %v) before close, want (%v, true)", got, ok, client)
	}
	if got, want := last.Mode(), proxy.ModeOutboundFlow; got != want {
		t.Errorf("tx.Mode() = %v before close, want %v", got, want)
	}

	client.Close()
	r.OnConnectionClosed(ctx, client)
	r.OnConnectionClosed(ctx, nil)

	req = toContact()
	if got := r.OnRequest(ctx, req); got != routing.OutcomeRouted {
		t.Fatalf("r.OnRequest() = %v after close, want %v", got, routing.OutcomeRouted)
	}
	if conn, ok := req.OutboundTarget(); ok {
		t.Errorf("req.OutboundTarget() = %v after close, want none", conn)
	}
	if got, want := last.Mode(), proxy.ModeGeneric; got != want {
		t.Errorf("tx.Mode() = %v after close, want %v", got, want)
	}
	if _, ok := store.AssertedUser(client.ID()); ok {
		t.Error("closed connection still asserted")
	}
}

func TestRouter_GenericHandlersHaveNoSideEffects(t *testing.T) {
	t.Parallel()

	// asserter mock has no expectations beyond AddPAI
	r, deps := newRouter(t, routing.Config{UserAssertion: true, OutboundMangling: true})
	req := newRequest("INVITE", "sip:bob@example.com", nil)

	deps.mangler.EXPECT().ExtractFromRURI(gomock.Any(), req).Return(false)
	deps.asserter.EXPECT().AddPAI(gomock.Any(), req)
	var tx *proxy.Transaction
	captureRoute(deps.engine, req, &tx)

	r.OnRequest(t.Context(), req)

	ctx := t.Context()
	if err := errors.Join(
		tx.RecvResponse(ctx, &sip.Response{Status: sip.ResponseStatusTrying, Request: req}),
		tx.RecvResponse(ctx, &sip.Response{Status: sip.ResponseStatusRinging, Request: req}),
		tx.TimeoutInvite(ctx),
	); err != nil {
		t.Fatalf("reporting events error = %v, want nil", err)
	}
	if got, ok := tx.Terminal(); !ok || got != proxy.EventInviteTimeout {
		t.Errorf("tx.Terminal() = (%v, %v), want (invite_timeout, true)", got, ok)
	}
}

type failingReplyRequest struct {
	*siptest.Request
}

func (failingReplyRequest) Reply(context.Context, sip.ResponseStatus, string) error {
	return errors.New("connection reset")
}

func TestRouter_Failures(t *testing.T) {
	t.Parallel()

	t.Run("route error", func(t *testing.T) {
		t.Parallel()

		r, deps := newRouter(t, routing.Config{})
		req := newRequest("MESSAGE", "sip:bob@example.com", nil)
		deps.engine.EXPECT().Route(gomock.Any(), gomock.Any(), req).Return(errors.New("engine stopped"))

		if got := r.OnRequest(t.Context(), req); got != routing.OutcomeFailed {
			t.Errorf("r.OnRequest() = %v, want %v", got, routing.OutcomeFailed)
		}
		checkReplies(t, req, nil)
	})

	t.Run("reply error", func(t *testing.T) {
		t.Parallel()

		r, _ := newRouter(t, routing.Config{})
		req := failingReplyRequest{newRequest("FOO", "sip:bob@example.com", nil)}

		if got := r.OnRequest(t.Context(), req); got != routing.OutcomeFailed {
			t.Errorf("r.OnRequest() = %v, want %v", got, routing.OutcomeFailed)
		}
	})
}

func TestRouter_EndToEnd(t *testing.T) {
	t.Parallel()

	t.Run("initial INVITE forwarded out", func(t *testing.T) {
		t.Parallel()

		r, deps := newRouter(t, routing.Config{})
		req := newRequest("INVITE", "sip:2125551212@example.com", func(o *siptest.RequestOptions) {
			o.To = uri.MustParse("sip:2125551212@example.com")
			o.From = uri.MustParse("sip:13105550100@example.com")
		})
		var tx *proxy.Transaction
		captureRoute(deps.engine, req, &tx)

		if got := r.OnRequest(t.Context(), req); got != routing.OutcomeRouted {
			t.Fatalf("r.OnRequest() = %v, want %v", got, routing.OutcomeRouted)
		}
		if got, want := req.RequestURI().User, "+12125551212"; got != want {
			t.Errorf("req.RequestURI().User = %q, want %q", got, want)
		}
		if got, want := req.To().User, "+12125551212"; got != want {
			t.Errorf("req.To().User = %q, want %q", got, want)
		}
		if got, want := req.From().User, "+13105550100"; got != want {
			t.Errorf("req.From().User = %q, want %q", got, want)
		}
		if got, want := tx.Mode(), proxy.ModeGeneric; got != want {
			t.Errorf("tx.Mode() = %v, want %v", got, want)
		}
		if got := len(tx.Handlers().Kinds()); got != 5 {
			t.Errorf("registered handler kinds = %d, want 5", got)
		}
		checkReplies(t, req, nil)
	})

	t.Run("in-dialog BYE", func(t *testing.T) {
		t.Parallel()

		r, deps := newRouter(t, routing.Config{})
		req := newRequest("BYE", "sip:bob@192.0.2.20", func(o *siptest.RequestOptions) {
			o.ToTag = "8321234356"
			o.Routes = []uri.SIP{localRoute}
		})
		var tx *proxy.Transaction
		captureRoute(deps.engine, req, &tx)

		if got := r.OnRequest(t.Context(), req); got != routing.OutcomeRouted {
			t.Fatalf("r.OnRequest() = %v, want %v", got, routing.OutcomeRouted)
		}
		if got, want := tx.Mode(), proxy.ModeInDialog; got != want {
			t.Errorf("tx.Mode() = %v, want %v", got, want)
		}
		checkReplies(t, req, nil)
	})

	t.Run("PUBLISH to myself", func(t *testing.T) {
		t.Parallel()

		r, _ := newRouter(t, routing.Config{})
		req := newRequest("PUBLISH", "sip:presence@"+localHost, nil)

		if got := r.OnRequest(t.Context(), req); got != routing.OutcomeReplied {
			t.Errorf("r.OnRequest() = %v, want %v", got, routing.OutcomeReplied)
		}
		checkReplies(t, req, []siptest.Reply{{Status: sip.ResponseStatusNotFound, Reason: "Ok, I'm here"}})
	})

	t.Run("unknown method", func(t *testing.T) {
		t.Parallel()

		r, _ := newRouter(t, routing.Config{})
		req := newRequest("FOO", "sip:bob@example.com", nil)

		if got := r.OnRequest(t.Context(), req); got != routing.OutcomeRejected {
			t.Errorf("r.OnRequest() = %v, want %v", got, routing.OutcomeRejected)
		}
		checkReplies(t, req, []siptest.Reply{{Status: sip.ResponseStatusNotImplemented, Reason: "Not Implemented"}})
	})
}
