package enum

// ── Order state machine (CHECK constrained in DB) ──

const (
	OrderStatusPending       = "PENDING"
	OrderStatusInPreparation = "IN_PREPARATION"
	OrderStatusReady         = "READY"
	OrderStatusSettled       = "SETTLED"
)

// ── Actor roles (CHECK constrained in DB; CUSTOMER exists only in
// table-session tokens, never in the users table) ──

const (
	UserRoleAdmin    = "ADMIN"
	UserRoleWaiter   = "WAITER"
	UserRoleCook     = "COOK"
	UserRoleCashier  = "CASHIER"
	UserRoleCustomer = "CUSTOMER"
)
