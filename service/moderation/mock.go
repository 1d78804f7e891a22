package moderation

import "context"

type mock struct {
}

func NewServiceMock() Service {
	return mock{}
}

func (m mock) Evaluate(ctx context.Context, in Input) (out Outcome, err error) {
	switch in.Text {
	case "fail":
		err = ErrValidation
	case "reject":
		out.Rejected = true
	}
	return
}

// FollowsMock answers Following from a fixed set of follower->followee
// pairs keyed as "follower/followee". A non-nil Err fails every lookup.
type FollowsMock struct {
	Pairs map[string]bool
	Err   error
}

func (fm FollowsMock) Following(ctx context.Context, followerId, followeeId string) (following bool, err error) {
	if fm.Err != nil {
		err = fm.Err
		return
	}
	following = fm.Pairs[followerId+"/"+followeeId]
	return
}
