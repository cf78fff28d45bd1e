package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_registrations_total",
		Help: "Total number of accounts created through registration.",
	})

	loginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_attempts_total",
		Help: "Total number of login attempts by result.",
	}, []string{"result"})

	lockoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_lockouts_total",
		Help: "Total number of accounts locked after repeated failures.",
	})

	otpVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_otp_verifications_total",
		Help: "Total number of OTP verification attempts by result.",
	}, []string{"result"})

	tokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_refreshes_total",
		Help: "Total number of refresh token exchanges by result.",
	}, []string{"result"})

	passwordResetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_password_resets_total",
		Help: "Total number of completed password resets.",
	})

	federatedLoginsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_federated_logins_total",
		Help: "Total number of successful federated logins.",
	})
)
