package rbac

// 权限常量
const (
	// 资金相关操作
	PermissionFundEscrow       = "escrow:fund"
	PermissionApproveMilestone = "milestone:approve"
	PermissionReleaseMilestone = "milestone:release"

	// 普通操作权限
	PermissionReadProject = "project:read"

	// 管理操作
	PermissionReplayOutbox = "outbox:replay"
)

// 角色常量
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleUser: {
		PermissionReadProject,
		PermissionFundEscrow,
		PermissionApproveMilestone,
		PermissionReleaseMilestone,
	},
	RoleAdmin: {
		PermissionReadProject,
		PermissionFundEscrow,
		PermissionApproveMilestone,
		PermissionReleaseMilestone,
		PermissionReplayOutbox,
	},
}

// Resolver 根据 user_id 解析角色
type Resolver struct {
	admins map[int]struct{}
}

// NewResolver 创建角色解析器，adminIDs 中的用户拥有 admin 角色
func NewResolver(adminIDs []int) *Resolver {
	admins := make(map[int]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Resolver{admins: admins}
}

// RoleOf 获取用户角色
func (r *Resolver) RoleOf(userID int) string {
	if r != nil {
		if _, ok := r.admins[userID]; ok {
			return RoleAdmin
		}
	}
	return RoleUser
}

// HasPermission 检查用户是否有指定权限
func (r *Resolver) HasPermission(userID int, permission string) bool {
	for _, p := range rolePermissions[r.RoleOf(userID)] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查用户是否有指定权限（返回错误而不是布尔值，便于处理）
func (r *Resolver) CheckPermission(userID int, permission string) error {
	if !r.HasPermission(userID, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     int
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
