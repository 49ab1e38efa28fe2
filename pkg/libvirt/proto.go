package libvirt

import "encoding/xml"

// DomainXML 计算节点 domain 的最小定义
// Reference: https://libvirt.org/formatdomain.html
type DomainXML struct {
	XMLName     xml.Name `xml:"domain"`
	Type        string   `xml:"type,attr"`
	Name        string   `xml:"name"`
	Description string   `xml:"description,omitempty"`

	Memory        DomainMemory    `xml:"memory"`
	CurrentMemory DomainMemory    `xml:"currentMemory"`
	VCPU          DomainVCPU      `xml:"vcpu"`
	OS            DomainOS        `xml:"os"`
	Features      *DomainFeatures `xml:"features,omitempty"`

	OnPoweroff string `xml:"on_poweroff,omitempty"`
	OnReboot   string `xml:"on_reboot,omitempty"`
	OnCrash    string `xml:"on_crash,omitempty"`

	Devices DomainDevices `xml:"devices"`
}

type DomainMemory struct {
	Unit  string `xml:"unit,attr"`
	Value uint64 `xml:",chardata"`
}

type DomainVCPU struct {
	Placement string `xml:"placement,attr"`
	Value     int    `xml:",chardata"`
}

type DomainOS struct {
	Type DomainOSType `xml:"type"`
	Boot DomainBoot   `xml:"boot"`
}

type DomainOSType struct {
	Arch  string `xml:"arch,attr"`
	Value string `xml:",chardata"`
}

type DomainBoot struct {
	Dev string `xml:"dev,attr"`
}

type DomainFeatures struct {
	ACPI *struct{} `xml:"acpi,omitempty"`
	APIC *struct{} `xml:"apic,omitempty"`
}

type DomainDevices struct {
	Disks      []DomainDisk      `xml:"disk"`
	Interfaces []DomainInterface `xml:"interface"`
	Serial     DomainSerial      `xml:"serial"`
	Console    DomainConsole     `xml:"console"`
}

type DomainDisk struct {
	Type   string           `xml:"type,attr"`
	Device string           `xml:"device,attr"`
	Driver DomainDiskDriver `xml:"driver"`
	Source DomainDiskSource `xml:"source"`
	Target DomainDiskTarget `xml:"target"`
}

type DomainDiskDriver struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

type DomainDiskSource struct {
	File string `xml:"file,attr"`
}

type DomainDiskTarget struct {
	Dev string `xml:"dev,attr"`
	Bus string `xml:"bus,attr"`
}

type DomainInterface struct {
	Type   string                `xml:"type,attr"`
	Source DomainInterfaceSource `xml:"source"`
	Model  DomainInterfaceModel  `xml:"model"`
}

type DomainInterfaceSource struct {
	Network string `xml:"network,attr"`
}

type DomainInterfaceModel struct {
	Type string `xml:"type,attr"`
}

type DomainSerial struct {
	Type   string             `xml:"type,attr"`
	Target DomainSerialTarget `xml:"target"`
}

type DomainSerialTarget struct {
	Port int `xml:"port,attr"`
}

type DomainConsole struct {
	Type   string              `xml:"type,attr"`
	Target DomainConsoleTarget `xml:"target"`
}

type DomainConsoleTarget struct {
	Type string `xml:"type,attr"`
	Port int    `xml:"port,attr"`
}
