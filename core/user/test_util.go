package user

import (
	"context"

	"github.com/trezcool/chuo/core"
)

type serviceMock struct {
	*service
}

// NewServiceMock returns a Service sending its emails synchronously.
func NewServiceMock(conf *core.Config, repo Repository, denylist TokenDenylist, mailSvc core.EmailService, logger core.Logger) Service {
	return &serviceMock{service: newService(conf, repo, denylist, mailSvc, logger)}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}
