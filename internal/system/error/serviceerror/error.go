package serviceerror

import "github.com/wso2/consent-widget/internal/system/error/codes"

type ServiceErrorType string

const (
	ClientErrorType ServiceErrorType = "client_error"
	ServerErrorType ServiceErrorType = "server_error"
)

type ServiceError struct {
	Code             string           `json:"code"`
	Type             ServiceErrorType `json:"type"`
	Error            string           `json:"error"`
	ErrorDescription string           `json:"error_description,omitempty"`
}

var (
	InternalServerError = ServiceError{
		Type:             ServerErrorType,
		Code:             codes.InternalServerError,
		Error:            "internal_server_error",
		ErrorDescription: "An unexpected error occurred",
	}

	StorageError = ServiceError{
		Type:             ServerErrorType,
		Code:             codes.StorageError,
		Error:            "storage_error",
		ErrorDescription: "A storage error occurred",
	}

	InvalidRequestError = ServiceError{
		Type:             ClientErrorType,
		Code:             codes.InvalidRequest,
		Error:            "invalid_request",
		ErrorDescription: "The request is invalid",
	}

	ValidationError = ServiceError{
		Type:             ClientErrorType,
		Code:             codes.ValidationError,
		Error:            "validation_error",
		ErrorDescription: "Validation failed",
	}

	ResourceNotFoundError = ServiceError{
		Type:             ClientErrorType,
		Code:             codes.ResourceNotFound,
		Error:            "resource_not_found",
		ErrorDescription: "Resource not found",
	}

	WidgetConfigNotFoundError = ServiceError{
		Type:             ClientErrorType,
		Code:             codes.WidgetConfigNotFound,
		Error:            "widget_config_not_found",
		ErrorDescription: "No widget configuration exists for the given widget ID",
	}

	ConfigFetchError = ServiceError{
		Type:             ServerErrorType,
		Code:             codes.ConfigFetchFailed,
		Error:            "config_fetch_failed",
		ErrorDescription: "Widget configuration could not be fetched",
	}

	EmptyDecisionError = ServiceError{
		Type:             ClientErrorType,
		Code:             codes.EmptyDecision,
		Error:            "empty_decision",
		ErrorDescription: "At least one activity must be accepted or rejected",
	}

	SubmissionFailedError = ServiceError{
		Type:             ServerErrorType,
		Code:             codes.SubmissionFailed,
		Error:            "submission_failed",
		ErrorDescription: "We could not save your preferences. Please try again.",
	}

	TranslationInProgressError = ServiceError{
		Type:             ClientErrorType,
		Code:             codes.TranslationInProgress,
		Error:            "translation_in_progress",
		ErrorDescription: "A language change is already in progress",
	}

	ConsentIDInvalidError = ServiceError{
		Type:             ClientErrorType,
		Code:             codes.ConsentIDInvalid,
		Error:            "consent_id_invalid",
		ErrorDescription: "The Consent ID entered is not valid",
	}

	OTPInvalidError = ServiceError{
		Type:             ClientErrorType,
		Code:             codes.OTPInvalid,
		Error:            "otp_invalid",
		ErrorDescription: "The verification code is incorrect or has expired",
	}
)

func CustomServiceError(baseError ServiceError, description string) *ServiceError {
	return &ServiceError{
		Type:             baseError.Type,
		Code:             baseError.Code,
		Error:            baseError.Error,
		ErrorDescription: description,
	}
}
