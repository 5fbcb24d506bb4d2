// Builders for registering a GATT application with bluez in a few chained
// calls. The first error sticks and is returned by Run.

package pairing

import (
	"github.com/go-errors/errors"
	"github.com/godbus/dbus"
	"github.com/muka/go-bluetooth/bluez"
	"github.com/muka/go-bluetooth/bluez/profile"
	"github.com/muka/go-bluetooth/service"
)

type PrimaryType bool

const (
	Primary   = PrimaryType(true)
	Secondary = PrimaryType(false)
)

type AdvertisedType bool

const (
	Advertised         = AdvertisedType(true)
	AdvertisedOptional = AdvertisedType(false)
)

type ReadFunc = func() ([]byte, error)
type WriteFunc = func(value []byte) error

// Standard GATT attribute UUIDs
const (
	deviceNameUuid         = "2A00"
	serialNumberUuid       = "2A25"
	modelNumberUuid        = "2A24"
	manufacturerNameUuid   = "2A29"
	userDescriptionUuid    = "2901"
	presentationFormatUuid = "2904"

	// utf8 string, see the characteristic presentation format
	formatUtf8 = 25
)

type handlerKey struct {
	service        string
	characteristic string
}

type appBuilder struct {
	app    *service.Application
	err    error
	reads  map[handlerKey]ReadFunc
	writes map[handlerKey]WriteFunc
}

type serviceBuilder struct {
	*appBuilder
	uuid    string
	service *service.GattService1
}

type characteristicBuilder struct {
	*serviceBuilder
	characteristic *service.GattCharacteristic1
}

func newApp(objectName string, objectPath string, localName string) *appBuilder {
	b := &appBuilder{
		reads:  make(map[handlerKey]ReadFunc),
		writes: make(map[handlerKey]WriteFunc),
	}

	app, err := service.NewApplication(&service.ApplicationConfig{
		ObjectName: objectName,
		ObjectPath: dbus.ObjectPath(objectPath),
		LocalName:  localName,
		ReadFunc:   b.read,
		WriteFunc:  b.write,
	})
	if err != nil {
		b.err = errors.Errorf("Could not create app: %v", err)
		return b
	}

	b.app = app

	return b
}

func (b *appBuilder) read(app *service.Application, serviceUuid string, characteristicUuid string) ([]byte, error) {
	if read, ok := b.reads[handlerKey{serviceUuid, characteristicUuid}]; ok {
		return read()
	}

	return nil, service.NewCallbackError(service.CallbackNotRegistered, "")
}

func (b *appBuilder) write(app *service.Application, serviceUuid string, characteristicUuid string, value []byte) error {
	if write, ok := b.writes[handlerKey{serviceUuid, characteristicUuid}]; ok {
		return write(value)
	}

	return service.NewCallbackError(service.CallbackNotRegistered, "")
}

func (b *appBuilder) Run() (*service.Application, error) {
	if b.err != nil {
		return nil, b.err
	}

	err := b.app.Run()
	if err != nil {
		return nil, errors.Errorf("Could not run app: %v", err)
	}

	return b.app, nil
}

func (b *appBuilder) Service(primary PrimaryType, uuid string, advertised AdvertisedType) *serviceBuilder {
	s := &serviceBuilder{appBuilder: b, uuid: uuid}

	if b.err != nil {
		return s
	}

	svc, err := b.app.CreateService(&profile.GattService1Properties{
		Primary: bool(primary),
		UUID:    uuid,
	}, bool(advertised))
	if err != nil {
		b.err = errors.Errorf("Failed to create service %v: %v", uuid, err)
		return s
	}

	err = b.app.AddService(svc)
	if err != nil {
		b.err = errors.Errorf("Failed to add service %v: %v", uuid, err)
		return s
	}

	s.service = svc

	return s
}

func (s *serviceBuilder) DeviceName(value string) *characteristicBuilder {
	return s.characteristic(deviceNameUuid, []byte(value), nil, nil)
}

func (s *serviceBuilder) ManufacturerName(value string) *characteristicBuilder {
	return s.characteristic(manufacturerNameUuid, []byte(value), nil, nil)
}

func (s *serviceBuilder) SerialNumber(value string) *characteristicBuilder {
	return s.characteristic(serialNumberUuid, []byte(value), nil, nil)
}

func (s *serviceBuilder) ModelNumber(value string) *characteristicBuilder {
	return s.characteristic(modelNumberUuid, []byte(value), nil, nil)
}

func (s *serviceBuilder) Characteristic(uuid string, read ReadFunc, write WriteFunc) *characteristicBuilder {
	return s.characteristic(uuid, nil, read, write)
}

func (s *serviceBuilder) characteristic(uuid string, value []byte, read ReadFunc, write WriteFunc) *characteristicBuilder {
	c := &characteristicBuilder{serviceBuilder: s}

	if s.err != nil {
		return c
	}

	var flags []string
	key := handlerKey{s.uuid, uuid}

	if read != nil || value != nil {
		flags = append(flags, bluez.FlagCharacteristicRead)
	}

	if read != nil {
		s.reads[key] = read
	}

	if write != nil {
		flags = append(flags, bluez.FlagCharacteristicWrite)
		s.writes[key] = write
	}

	characteristic, err := s.service.CreateCharacteristic(&profile.GattCharacteristic1Properties{
		UUID:  uuid,
		Value: value,
		Flags: flags,
	})
	if err != nil {
		s.err = errors.Errorf("Failed to create characteristic %v: %v", uuid, err)
		return c
	}

	err = s.service.AddCharacteristic(characteristic)
	if err != nil {
		s.err = errors.Errorf("Failed to add characteristic %v: %v", uuid, err)
		return c
	}

	c.characteristic = characteristic

	return c
}

func (c *characteristicBuilder) Describe(description string) *characteristicBuilder {
	return c.descriptor(userDescriptionUuid, []byte(description))
}

func (c *characteristicBuilder) Utf8() *characteristicBuilder {
	return c.descriptor(presentationFormatUuid, []byte{formatUtf8})
}

func (c *characteristicBuilder) descriptor(uuid string, value []byte) *characteristicBuilder {
	if c.err != nil {
		return c
	}

	descriptor, err := c.characteristic.CreateDescriptor(&profile.GattDescriptor1Properties{
		UUID:  uuid,
		Value: value,
		Flags: []string{
			bluez.FlagDescriptorRead,
		},
	})
	if err != nil {
		c.err = errors.Errorf("Failed to create descriptor %v: %v", uuid, err)
		return c
	}

	err = c.characteristic.AddDescriptor(descriptor)
	if err != nil {
		c.err = errors.Errorf("Failed to add descriptor %v: %v", uuid, err)
		return c
	}

	return c
}
