package model

// Queue token status values.  The token itself lives in the admission
// store (admission.Entry), never in the durable store.
const (
    TokenWaiting = "WAITING"
    TokenActive  = "ACTIVE"
    TokenExpired = "EXPIRED"
)
