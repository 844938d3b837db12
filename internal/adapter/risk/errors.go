package risk

import "errors"

var errMissingVerdict = errors.New("assessment has no isFraudulent field")
