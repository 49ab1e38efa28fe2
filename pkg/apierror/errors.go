package apierror

import "net/http"

var (
	ErrInternalError = &Error{
		Code:       "InternalError",
		Message:    "An internal error has occurred.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrInvalidParameter = &Error{
		Code:       "InvalidParameterValue",
		Message:    "A parameter specified in a request is not valid.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrSimulationNotFound = &Error{
		Code:       "InvalidSimulationID.NotFound",
		Message:    "The specified simulation does not exist.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrInstanceNotFound = &Error{
		Code:       "InvalidInstanceID.NotFound",
		Message:    "The specified instance does not exist.",
		HTTPStatus: http.StatusNotFound,
	}

	// ErrIncorrectInstanceState 实例当前状态不允许该操作
	ErrIncorrectInstanceState = &Error{
		Code:       "IncorrectInstanceState",
		Message:    "The instance is in a state that does not allow this operation.",
		HTTPStatus: http.StatusConflict,
	}

	ErrUnsupportedSolver = &Error{
		Code:       "UnsupportedSolver",
		Message:    "The specified solver is not supported.",
		HTTPStatus: http.StatusBadRequest,
	}

	// ErrInstanceUnreachable 实例还没有地址或 agent 不可达
	ErrInstanceUnreachable = &Error{
		Code:       "InstanceUnreachable",
		Message:    "The instance agent cannot be reached.",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)
