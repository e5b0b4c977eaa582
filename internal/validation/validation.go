package validation

import (
	"math"
	"strconv"
	"strings"
)

// Code 校验失败规则
type Code string

const (
	CodeRequired    Code = "required"
	CodeInvalidType Code = "invalid_type"
	CodeNotPositive Code = "not_positive"
	CodeOutOfRange  Code = "out_of_range"
)

const (
	FieldMilestone = "milestone"
	FieldAmount    = "amount"
)

// ValidationError 可直接展示给用户的校验错误
type ValidationError struct {
	Code    Code   `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Result 校验结果：Err 为 nil 时 Value 有效
type Result[T any] struct {
	Value T
	Err   *ValidationError
}

// OK 是否通过
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// MilestoneSelection 已通过校验的里程碑标识
type MilestoneSelection struct {
	id string
}

func (m MilestoneSelection) String() string { return m.id }

// FundingAmount 已通过校验的注资金额，> 0
type FundingAmount struct {
	value float64
}

func (a FundingAmount) Float64() float64 { return a.value }

func fail[T any](code Code, field, message string) Result[T] {
	return Result[T]{Err: &ValidationError{Code: code, Field: field, Message: message}}
}

// ValidateMilestoneSelection 空或全空白 → Required
func ValidateMilestoneSelection(input string) Result[MilestoneSelection] {
	id := strings.TrimSpace(input)
	if id == "" {
		return fail[MilestoneSelection](CodeRequired, FieldMilestone, "Milestone is required")
	}
	return Result[MilestoneSelection]{Value: MilestoneSelection{id: id}}
}

// ValidateFundingAmount 依次检查 Required → InvalidType → NotPositive，只返回第一个失败的规则
func ValidateFundingAmount(input string) Result[FundingAmount] {
	s := strings.TrimSpace(input)
	if s == "" {
		return fail[FundingAmount](CodeRequired, FieldAmount, "Amount is required")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fail[FundingAmount](CodeInvalidType, FieldAmount, "Amount must be a number")
	}

	if v <= 0 {
		return fail[FundingAmount](CodeNotPositive, FieldAmount, "Amount must be greater than 0")
	}
	return Result[FundingAmount]{Value: FundingAmount{value: v}}
}

// AmountTooSmall 金额为正，但换算为最小单位后为 0
func AmountTooSmall() *ValidationError {
	return &ValidationError{Code: CodeNotPositive, Field: FieldAmount, Message: "Amount is too small"}
}

// AmountOutOfRange 金额换算为最小单位后超出 int64
func AmountOutOfRange() *ValidationError {
	return &ValidationError{Code: CodeOutOfRange, Field: FieldAmount, Message: "Amount is too large"}
}
