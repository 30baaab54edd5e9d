package usecase

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrWipeInProgress means another wipe holds the wipe lock
	ErrWipeInProgress = goerr.New("another wipe is in progress")
)
