package templates

import "errors"

var (
	ErrUnknownTemplate    = errors.New("templates: unknown template id")
	ErrDuplicateTemplate  = errors.New("templates: template id already registered")
	ErrTemplateIDRequired = errors.New("templates: template id is required")
	ErrRendererRequired   = errors.New("templates: renderer is required")
	ErrInvalidData        = errors.New("templates: template data does not match schema")
	ErrRenderFailed       = errors.New("templates: failed to render template")
)
