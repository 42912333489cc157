package client

import (
	"errors"

	"github.com/dmitrijs2005/matakeeper/internal/bus"
)

var (
	ErrUnavailable        = bus.ErrUnavailable
	ErrUnexpectedResponse = errors.New("unexpected agent response")
)
