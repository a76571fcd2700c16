package domain

import "errors"

var (
	ErrPartnerNotFound  = errors.New("partner_not_found")
	ErrRewardNotFound   = errors.New("reward_not_found")
	ErrRewardNotStarted = errors.New("reward_not_started")
	ErrRewardExpired    = errors.New("reward_expired")
	ErrOutOfStock       = errors.New("out_of_stock")
	ErrInvalidReward    = errors.New("invalid_reward")
	ErrInvalidPartner   = errors.New("invalid_partner")
	ErrDuplicateSlug    = errors.New("duplicate_slug")
)
