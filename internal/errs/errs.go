package errs

import "errors"

var ErrUserNotFound = errors.New("user not found")
var ErrInvalidToken = errors.New("invalid token")
var ErrEmailAlreadyExists = errors.New("email already exists")
var ErrInvalidCredentials = errors.New("invalid credentials")

var ErrInvalidPlan = errors.New("invalid plan selected")
var ErrOrderNotFound = errors.New("order not found")
var ErrOrderIDConflict = errors.New("order id conflict")

// ErrGatewayUnavailable covers transport failures, timeouts and 5xx/429
// answers; the call is safe to retry later.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")
var ErrGatewayRejected = errors.New("payment gateway rejected request")

var ErrMalformedWebhook = errors.New("invalid webhook data")
var ErrInvalidSignature = errors.New("invalid webhook signature")
