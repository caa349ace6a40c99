package expr

import (
	"fmt"

	"github.com/homehub/hearth-core/internal/core/devices"
)

// Op identifies a Node's operation. Node is a small recursive expression
// tree rather than a parsed string grammar — routines and tests build it
// directly, matching the original's typed-AST conditions.
type Op string

const (
	OpConst Op = "const"

	OpAnd Op = "and"
	OpOr  Op = "or"
	OpNot Op = "not"

	OpEq  Op = "eq"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpGt  Op = "gt"
	OpGte Op = "gte"

	OpAdd Op = "add"
	OpSub Op = "sub"
	OpMul Op = "mul"
	OpDiv Op = "div"

	OpDevicePower      Op = "device_power"
	OpDeviceBrightness Op = "device_brightness"
	OpGroupAllPowered  Op = "group_all_powered"
	OpSceneActive      Op = "scene_active"
	OpHourOfDay        Op = "hour_of_day"
)

// Node is one expression tree node. Const holds a literal Value; unary
// Not uses Left only; comparisons and arithmetic use Left/Right; device
// and group lookups use DeviceKey/GroupID/SceneID.
type Node struct {
	Op Op

	Const Value

	Left  *Node
	Right *Node

	DeviceKey devices.Key
	GroupID   string
	SceneID   string
}

// Value is the evaluator's only runtime type: a float64/bool/string
// union, mirroring the narrow value set the condition language needs.
type Value struct {
	Bool   bool
	Number float64
	String string
	Kind   ValueKind
}

type ValueKind int

const (
	KindBool ValueKind = iota
	KindNumber
	KindString
)

func boolVal(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func numberVal(n float64) Value { return Value{Kind: KindNumber, Number: n} }

// Truthy coerces a Value to bool for condition evaluation.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Number != 0
	default:
		return v.String != ""
	}
}

// Eval evaluates node against ctx. It is pure: no argument is mutated
// and no external call is made.
func Eval(ctx Context, node *Node) (Value, error) {
	if node == nil {
		return Value{}, fmt.Errorf("nil expression node")
	}

	switch node.Op {
	case OpConst:
		return node.Const, nil

	case OpAnd:
		l, err := Eval(ctx, node.Left)
		if err != nil {
			return Value{}, err
		}
		if !l.Truthy() {
			return boolVal(false), nil
		}
		r, err := Eval(ctx, node.Right)
		if err != nil {
			return Value{}, err
		}
		return boolVal(r.Truthy()), nil

	case OpOr:
		l, err := Eval(ctx, node.Left)
		if err != nil {
			return Value{}, err
		}
		if l.Truthy() {
			return boolVal(true), nil
		}
		r, err := Eval(ctx, node.Right)
		if err != nil {
			return Value{}, err
		}
		return boolVal(r.Truthy()), nil

	case OpNot:
		l, err := Eval(ctx, node.Left)
		if err != nil {
			return Value{}, err
		}
		return boolVal(!l.Truthy()), nil

	case OpEq, OpLt, OpLte, OpGt, OpGte:
		l, err := Eval(ctx, node.Left)
		if err != nil {
			return Value{}, err
		}
		r, err := Eval(ctx, node.Right)
		if err != nil {
			return Value{}, err
		}
		return compare(node.Op, l, r), nil

	case OpAdd, OpSub, OpMul, OpDiv:
		l, err := Eval(ctx, node.Left)
		if err != nil {
			return Value{}, err
		}
		r, err := Eval(ctx, node.Right)
		if err != nil {
			return Value{}, err
		}
		return arithmetic(node.Op, l, r)

	case OpDevicePower:
		d, ok := ctx.Device(node.DeviceKey)
		if !ok || !d.IsManaged() {
			return boolVal(false), nil
		}
		return boolVal(d.Data.Light.Power), nil

	case OpDeviceBrightness:
		d, ok := ctx.Device(node.DeviceKey)
		if !ok || !d.IsManaged() {
			return numberVal(0), nil
		}
		return numberVal(d.Data.Light.Brightness), nil

	case OpGroupAllPowered:
		members, ok := ctx.GroupMembers(node.GroupID)
		if !ok || len(members) == 0 {
			return boolVal(false), nil
		}
		for _, key := range members {
			d, ok := ctx.Device(key)
			if !ok || !d.IsManaged() || !d.Data.Light.Power {
				return boolVal(false), nil
			}
		}
		return boolVal(true), nil

	case OpSceneActive:
		return boolVal(ctx.SceneHasDevice(node.SceneID, node.DeviceKey)), nil

	case OpHourOfDay:
		return numberVal(float64(ctx.Now.Hour())), nil

	default:
		return Value{}, fmt.Errorf("unknown expression op %q", node.Op)
	}
}

func compare(op Op, l, r Value) Value {
	var cmp int
	switch {
	case l.Kind == KindNumber && r.Kind == KindNumber:
		switch {
		case l.Number < r.Number:
			cmp = -1
		case l.Number > r.Number:
			cmp = 1
		}
	case l.Kind == KindString && r.Kind == KindString:
		switch {
		case l.String < r.String:
			cmp = -1
		case l.String > r.String:
			cmp = 1
		}
	default:
		return boolVal(l.Truthy() == r.Truthy() && op == OpEq)
	}

	switch op {
	case OpEq:
		return boolVal(cmp == 0)
	case OpLt:
		return boolVal(cmp < 0)
	case OpLte:
		return boolVal(cmp <= 0)
	case OpGt:
		return boolVal(cmp > 0)
	case OpGte:
		return boolVal(cmp >= 0)
	default:
		return boolVal(false)
	}
}

func arithmetic(op Op, l, r Value) (Value, error) {
	if l.Kind != KindNumber || r.Kind != KindNumber {
		return Value{}, fmt.Errorf("arithmetic on non-numeric operand")
	}
	switch op {
	case OpAdd:
		return numberVal(l.Number + r.Number), nil
	case OpSub:
		return numberVal(l.Number - r.Number), nil
	case OpMul:
		return numberVal(l.Number * r.Number), nil
	case OpDiv:
		if r.Number == 0 {
			return Value{}, fmt.Errorf("division by zero")
		}
		return numberVal(l.Number / r.Number), nil
	default:
		return Value{}, fmt.Errorf("unknown arithmetic op %q", op)
	}
}

// IntentKind mirrors the Action variants an expression may produce.
type IntentKind string

const (
	IntentActivateScene  IntentKind = "activate_scene"
	IntentDim            IntentKind = "dim"
	IntentSetDeviceState IntentKind = "set_device_state"
)

// Intent is a caller-enqueued effect: eval_action_expr never calls the
// event bus itself, it only describes what should happen (spec.md §4.6).
type Intent struct {
	Kind IntentKind

	SceneID    string
	DeviceKeys []devices.Key
	GroupKeys  []devices.Key

	DimStep float64

	SetState devices.Data
}

// ActionExpr is a condition-guarded intent: when Condition evaluates
// truthy against ctx, Then is appended to the returned intent list.
type ActionExpr struct {
	Condition *Node
	Then      Intent
}

// EvalActionExpr evaluates each guarded action and returns the intents
// whose condition is currently true, in order.
func EvalActionExpr(ctx Context, exprs []ActionExpr) ([]Intent, error) {
	var out []Intent
	for _, e := range exprs {
		v, err := Eval(ctx, e.Condition)
		if err != nil {
			return out, fmt.Errorf("evaluating action expression: %w", err)
		}
		if v.Truthy() {
			out = append(out, e.Then)
		}
	}
	return out, nil
}
