package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/tempo/engine/core"
)

// WindowSurface is the part of the platform window Vulkan needs.
type WindowSurface interface {
	RequiredInstanceExtensions() []string
	// CreateWindowSurface returns a VkSurfaceKHR as a raw handle.
	CreateWindowSurface(instance interface{}) (uintptr, error)
	InstanceProcAddress() unsafe.Pointer
}

type BootstrapConfig struct {
	ApplicationName string
	Validation      bool
}

// Bootstrap loads the Vulkan loader and creates the instance, the optional
// debug callback, the window surface and the logical device.
func Bootstrap(cfg BootstrapConfig, window WindowSurface) (*VulkanContext, error) {
	procAddr := window.InstanceProcAddress()
	if procAddr == nil {
		return nil, fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, err
	}

	context := &VulkanContext{
		validation: cfg.Validation,
		locks:      NewVulkanLockPool(),
	}

	if err := createInstance(context, cfg.ApplicationName, window.RequiredInstanceExtensions()); err != nil {
		return nil, err
	}

	if context.validation {
		if err := createDebugCallback(context); err != nil {
			context.Destroy()
			return nil, err
		}
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := window.CreateWindowSurface(context.Instance)
	if err != nil {
		core.LogError("Vulkan surface creation failed: %s", err)
		context.Destroy()
		return nil, err
	}
	context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	device, err := DeviceCreate(context)
	if err != nil {
		context.Destroy()
		return nil, err
	}
	context.Device = device

	core.LogInfo("Vulkan bootstrap complete.")
	return context, nil
}

func createInstance(context *VulkanContext, appName string, windowExtensions []string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Tempo"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{"VK_KHR_surface"}
	requiredExtensions = append(requiredExtensions, windowExtensions...)

	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			vk.KhrGetPhysicalDeviceProperties2ExtensionName,
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	requiredLayers := []string{}
	if context.validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		requiredLayers = append(requiredLayers, "VK_LAYER_KHRONOS_validation")
		if err := checkLayers(requiredLayers); err != nil {
			return err
		}
	}
	core.LogDebug("Required extensions: %v", requiredExtensions)

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	if res := vk.CreateInstance(&createInfo, context.Allocator, &context.Instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

func checkLayers(required []string) error {
	core.LogInfo("Validation layers enabled. Enumerating...")
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return fmt.Errorf("failed to enumerate instance layers: %s", VulkanResultString(res))
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return fmt.Errorf("failed to enumerate instance layers: %s", VulkanResultString(res))
	}

	for _, name := range required {
		found := false
		for j := range available {
			available[j].Deref()
			if vk.ToString(available[j].LayerName[:]) == name {
				found = true
				break
			}
		}
		if !found {
			err := fmt.Errorf("required validation layer is missing: %s", name)
			core.LogError(err.Error())
			return err
		}
	}
	core.LogInfo("All required validation layers are present.")
	return nil
}

func createDebugCallback(context *VulkanContext) error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}

	var dbg vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(context.Instance, &debugCreateInfo, context.Allocator, &dbg)); err != nil {
		core.LogError("vk.CreateDebugReportCallback failed with %s", err)
		return err
	}
	context.debugCallback = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
