package service

import "errors"

const (
	ServiceName        = "ESignArchiver"
	ServiceDisplayName = "E-Signature Archiver"
	ServiceDescription = "Sends DocuSign signature requests and archives signed envelopes to SharePoint"
)

var errNotWindows = errors.New("service management is only available on Windows")
