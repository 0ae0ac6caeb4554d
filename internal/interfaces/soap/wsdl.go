package soap

import (
	"io"
	"text/template"
)

// ServiceName is the WSDL service name
const ServiceName = "QBWebConnectorSvc"

var wsdlTemplate = template.Must(template.New("wsdl").Parse(`<?xml version="1.0" encoding="utf-8"?>
<wsdl:definitions xmlns:soap="http://schemas.xmlsoap.org/wsdl/soap/" xmlns:s="http://www.w3.org/2001/XMLSchema" xmlns:tns="{{.Namespace}}" xmlns:wsdl="http://schemas.xmlsoap.org/wsdl/" targetNamespace="{{.Namespace}}">
  <wsdl:types>
    <s:schema elementFormDefault="qualified" targetNamespace="{{.Namespace}}">
      <s:complexType name="ArrayOfString">
        <s:sequence>
          <s:element minOccurs="0" maxOccurs="unbounded" name="string" nillable="true" type="s:string"/>
        </s:sequence>
      </s:complexType>
{{- range .Operations}}
      <s:element name="{{.Name}}">
        <s:complexType>
          <s:sequence>
{{- range .Params}}
            <s:element minOccurs="{{if eq .Type "s:int"}}1{{else}}0{{end}}" maxOccurs="1" name="{{.Name}}" type="{{.Type}}"/>
{{- end}}
          </s:sequence>
        </s:complexType>
      </s:element>
      <s:element name="{{.Name}}Response">
        <s:complexType>
          <s:sequence>
            <s:element minOccurs="{{if eq .Result "s:int"}}1{{else}}0{{end}}" maxOccurs="1" name="{{.Name}}Result" type="{{.Result}}"/>
          </s:sequence>
        </s:complexType>
      </s:element>
{{- end}}
    </s:schema>
  </wsdl:types>
{{- range .Operations}}
  <wsdl:message name="{{.Name}}SoapIn">
    <wsdl:part name="parameters" element="tns:{{.Name}}"/>
  </wsdl:message>
  <wsdl:message name="{{.Name}}SoapOut">
    <wsdl:part name="parameters" element="tns:{{.Name}}Response"/>
  </wsdl:message>
{{- end}}
  <wsdl:portType name="{{.Service}}Soap">
{{- range .Operations}}
    <wsdl:operation name="{{.Name}}">
      <wsdl:input message="tns:{{.Name}}SoapIn"/>
      <wsdl:output message="tns:{{.Name}}SoapOut"/>
    </wsdl:operation>
{{- end}}
  </wsdl:portType>
  <wsdl:binding name="{{.Service}}Soap" type="tns:{{.Service}}Soap">
    <soap:binding transport="http://schemas.xmlsoap.org/soap/http"/>
{{- $ns := .Namespace}}
{{- range .Operations}}
    <wsdl:operation name="{{.Name}}">
      <soap:operation soapAction="{{$ns}}{{.Name}}" style="document"/>
      <wsdl:input>
        <soap:body use="literal"/>
      </wsdl:input>
      <wsdl:output>
        <soap:body use="literal"/>
      </wsdl:output>
    </wsdl:operation>
{{- end}}
  </wsdl:binding>
  <wsdl:service name="{{.Service}}">
    <wsdl:port name="{{.Service}}Soap" binding="tns:{{.Service}}Soap">
      <soap:address location="{{html .Location}}"/>
    </wsdl:port>
  </wsdl:service>
</wsdl:definitions>
`))

type wsdlData struct {
	Namespace  string
	Service    string
	Location   string
	Operations []operation
}

// WriteWSDL renders the service description with the given endpoint address
func WriteWSDL(w io.Writer, location string) error {
	return wsdlTemplate.Execute(w, wsdlData{
		Namespace:  ServiceNS,
		Service:    ServiceName,
		Location:   location,
		Operations: operations,
	})
}
