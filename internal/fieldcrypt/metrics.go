package fieldcrypt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type failureReason string

const (
	reasonMalformed      failureReason = "malformed"
	reasonLength         failureReason = "invalid_length"
	reasonAuthentication failureReason = "authentication"
	reasonKeyDerivation  failureReason = "key_derivation"
)

var (
	encryptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phiguard_fieldcrypt_encrypt_total",
		Help: "Number of field values encrypted",
	})
	decryptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phiguard_fieldcrypt_decrypt_total",
		Help: "Number of field values successfully decrypted",
	})
	decryptFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phiguard_fieldcrypt_decrypt_failures_total",
		Help: "Number of field decryptions rejected, by reason",
	}, []string{"reason"})
)
